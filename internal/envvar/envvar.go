package envvar

const (
	// SentimentEnv is the environment variable used to determine the environment
	SentimentEnv = "SENTIMENT_ENV"

	// SentimentConfig is the environment variable used to locate the config file
	SentimentConfig = "SENTIMENT_CONFIG"

	// SentimentModelsPath is the environment variable used to override the models directory
	SentimentModelsPath = "SENTIMENT_MODELS_PATH"

	// SentimentServerHTTPPort is the environment variable used to determine the HTTP port
	SentimentServerHTTPPort = "SENTIMENT_SERVER_HTTP_PORT"

	// SentimentServerGRPCPort is the environment variable used to determine the gRPC port
	SentimentServerGRPCPort = "SENTIMENT_SERVER_GRPC_PORT"
)
