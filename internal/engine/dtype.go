package engine

import (
	"fmt"
	"path"
	"strings"
)

// DType is the precision or quantization mode of the model weights.
type DType string

const (
	DTypeFP32  DType = "fp32"
	DTypeFP16  DType = "fp16"
	DTypeQ8    DType = "q8"
	DTypeInt8  DType = "int8"
	DTypeUint8 DType = "uint8"
	DTypeQ4    DType = "q4"
	DTypeBNB4  DType = "bnb4"
	DTypeQ4F16 DType = "q4f16"
)

// onnxSuffixes maps each dtype to the file name suffix used by ONNX model repositories.
var onnxSuffixes = map[DType]string{
	DTypeFP32:  "",
	DTypeFP16:  "_fp16",
	DTypeQ8:    "_quantized",
	DTypeInt8:  "_int8",
	DTypeUint8: "_uint8",
	DTypeQ4:    "_q4",
	DTypeBNB4:  "_bnb4",
	DTypeQ4F16: "_q4f16",
}

// DTypes returns every supported dtype.
func DTypes() []DType {
	return []DType{DTypeFP32, DTypeFP16, DTypeQ8, DTypeInt8, DTypeUint8, DTypeQ4, DTypeBNB4, DTypeQ4F16}
}

// ParseDType parses a dtype name, case-insensitively.
func ParseDType(s string) (DType, error) {
	d := DType(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDType, s)
	}

	return d, nil
}

// Valid reports whether d is a supported dtype.
func (d DType) Valid() bool {
	_, ok := onnxSuffixes[d]
	return ok
}

// OnnxFile returns the repository-relative path of the ONNX weights for d,
// e.g. "onnx/model_fp16.onnx".
func (d DType) OnnxFile() string {
	return path.Join("onnx", "model"+onnxSuffixes[d]+".onnx")
}

// String implements fmt.Stringer.
func (d DType) String() string {
	return string(d)
}
