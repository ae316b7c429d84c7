package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/rimkus-dev/sentiment/internal/config"
	"github.com/rimkus-dev/sentiment/internal/config/source"
	"github.com/rimkus-dev/sentiment/internal/content"
	"github.com/rimkus-dev/sentiment/internal/engine"
	"github.com/rimkus-dev/sentiment/internal/env"
	"github.com/rimkus-dev/sentiment/internal/logger"
	"github.com/rimkus-dev/sentiment/internal/model"
	"github.com/rimkus-dev/sentiment/internal/sentiment"
	"github.com/rimkus-dev/sentiment/internal/service"
)

const usage = `Usage:
  sentiment analyze [flags] TEXT...
  sentiment posts [flags]

Run "sentiment <command> --help" for the flags of a command.
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "analyze":
		err = runAnalyze(ctx, os.Args[2:], os.Stdout)
	case "posts":
		err = runPosts(ctx, os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}
}

// common holds the flags shared by every command.
type common struct {
	configPath string
	model      string
	dtype      string
	modelsDir  string
	logLevel   string
	jsonOutput bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVarP(&c.configPath, "config", "c", "", "Path to a sentimentd config file")
	fs.StringVarP(&c.model, "model", "m", "", "Model repository (overrides config)")
	fs.StringVar(&c.dtype, "dtype", "", "Weight precision: "+dtypeList()+" (overrides config)")
	fs.StringVar(&c.modelsDir, "models-dir", "", "Directory models are stored in (overrides config)")
	fs.StringVar(&c.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	fs.BoolVar(&c.jsonOutput, "json", false, "Print one JSON object per line")
}

func (c *common) load() (*config.Config, error) {
	cfg := config.Default()
	if c.configPath != "" {
		loaded, err := config.LoadAndValidate(c.configPath, "")
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.model != "" {
		cfg.Sentiment.Model = c.model
		if cfg.Sentiment.Source.HuggingFace != nil {
			cfg.Sentiment.Source.HuggingFace.Repo = ""
		}
	}
	if c.dtype != "" {
		cfg.Sentiment.DType = c.dtype
	}
	if c.modelsDir != "" {
		cfg.Storage.ModelsDir = c.modelsDir
	}

	return cfg, nil
}

// openSession wires the model manager, providers and a session that loads
// on first use. The returned func releases everything.
func (c *common) openSession() (*sentiment.Session, func(), error) {
	slog.SetDefault(logger.New(env.FromEnv(), logger.WithLevel(logger.ParseLevel(c.logLevel))))

	cfg, err := c.load()
	if err != nil {
		return nil, nil, err
	}

	downloader, err := source.GetDownloader(context.Background(), config.SourceTypeHuggingFace)
	if err != nil {
		return nil, nil, err
	}

	manager := model.NewManager(model.ResolveModelsPath(cfg), downloader)
	manager.LoadFromConfig(cfg)

	providers, err := service.NewProviders(manager)
	if err != nil {
		return nil, nil, err
	}

	off := false
	cfg.Sentiment.AutoInit = &off

	svc, err := service.NewSentiment(providers, cfg.Sentiment, nil, slog.Default())
	if err != nil {
		_ = providers.Close()
		return nil, nil, err
	}

	return svc.Session(), func() {
		svc.Close()
		_ = providers.Close()
	}, nil
}

type result struct {
	Slug  string  `json:"slug,omitempty"`
	Date  string  `json:"date,omitempty"`
	Text  string  `json:"text"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func runAnalyze(ctx context.Context, args []string, out io.Writer) error {
	var c common
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	c.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	texts := fs.Args()
	if len(texts) == 0 {
		return errors.New("analyze: at least one TEXT is required")
	}

	session, closeFn, err := c.openSession()
	if err != nil {
		return err
	}
	defer closeFn()

	p := newPrinter(out, c.jsonOutput, "LABEL", "SCORE", "TEXT")
	defer p.flush()

	for _, text := range texts {
		res, err := analyze(ctx, session, text)
		if err != nil {
			return err
		}
		p.print(res, res.Label, fmt.Sprintf("%.4f", res.Score), res.Text)
	}

	return nil
}

func runPosts(ctx context.Context, args []string, out io.Writer) error {
	var (
		c   common
		dir string
	)
	fs := flag.NewFlagSet("posts", flag.ContinueOnError)
	c.register(fs)
	fs.StringVarP(&dir, "dir", "d", "", "Blog collection directory (default content.blog_dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if dir == "" {
		cfg, err := c.load()
		if err != nil {
			return err
		}
		dir = cfg.Content.BlogDir
	}

	posts, loadErr := content.Load(dir)
	if loadErr != nil && len(posts) == 0 {
		return loadErr
	}
	if loadErr != nil {
		fmt.Fprintln(os.Stderr, "warning: some posts were skipped:", loadErr)
	}

	session, closeFn, err := c.openSession()
	if err != nil {
		return err
	}
	defer closeFn()

	p := newPrinter(out, c.jsonOutput, "DATE", "SLUG", "LABEL", "SCORE")
	defer p.flush()

	for _, post := range posts {
		res, err := analyze(ctx, session, post.Description)
		if err != nil {
			return fmt.Errorf("%s: %w", post.Slug, err)
		}
		res.Slug = post.Slug
		res.Date = post.PubDate.Format("2006-01-02")
		p.print(res, res.Date, res.Slug, res.Label, fmt.Sprintf("%.4f", res.Score))
	}

	return nil
}

func analyze(ctx context.Context, session *sentiment.Session, text string) (result, error) {
	if err := session.Analyze(ctx, text); err != nil {
		return result{}, err
	}

	res := result{Text: text}
	if rec := session.LastResult(); rec != nil {
		res.Label = rec.Label
		res.Score = rec.Score
	}
	return res, nil
}

type printer struct {
	tw   *tabwriter.Writer
	enc  *json.Encoder
	json bool
}

func newPrinter(out io.Writer, jsonOutput bool, header ...string) *printer {
	p := &printer{json: jsonOutput}
	if jsonOutput {
		p.enc = json.NewEncoder(out)
		return p
	}

	p.tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(p.tw, strings.Join(header, "\t"))
	return p
}

func (p *printer) print(v any, columns ...string) {
	if p.json {
		_ = p.enc.Encode(v)
		return
	}
	fmt.Fprintln(p.tw, strings.Join(columns, "\t"))
}

func (p *printer) flush() {
	if p.tw != nil {
		_ = p.tw.Flush()
	}
}

func dtypeList() string {
	names := make([]string, 0, len(engine.DTypes()))
	for _, d := range engine.DTypes() {
		names = append(names, string(d))
	}
	return strings.Join(names, ", ")
}
