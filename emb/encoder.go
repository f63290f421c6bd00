// Package emb wraps an ONNX sentence-transformer export behind a small
// Encode API: HuggingFace tokenizer.json for tokenization, ONNX Runtime for
// inference, attention-masked mean pooling and L2 normalization.
package emb

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

// Config describes where the runtime, model and tokenizer live.
type Config struct {
	OrtDLL        string
	ModelPath     string
	TokenizerPath string
	MaxSeqLen     int
}

// Encoder turns text into a dense, unit-length vector.
type Encoder struct {
	mu sync.Mutex

	tk      *tokenizer.Tokenizer
	session *ort.DynamicAdvancedSession

	inputNames []string
	outputName string
	pooled     bool
	dim        int
	maxSeqLen  int
}

var (
	envMu   sync.Mutex
	envRefs int
)

// acquireEnvironment initializes the process-wide ORT environment on first use.
func acquireEnvironment(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 && !ort.IsInitialized() {
		if strings.TrimSpace(libPath) != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnvironment() {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		return
	}
	envRefs--
	if envRefs == 0 && ort.IsInitialized() {
		_ = ort.DestroyEnvironment()
	}
}

// Init loads the tokenizer and creates an inference session for the model.
func (e *Encoder) Init(cfg Config) error {
	if strings.TrimSpace(cfg.ModelPath) == "" {
		return errors.New("model path is empty")
	}
	if strings.TrimSpace(cfg.TokenizerPath) == "" {
		return errors.New("tokenizer path is empty")
	}
	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return fmt.Errorf("load tokenizer: %w", err)
	}
	if err := acquireEnvironment(cfg.OrtDLL); err != nil {
		return err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		releaseEnvironment()
		return fmt.Errorf("inspect model: %w", err)
	}
	inputNames := make([]string, 0, len(inputs))
	for _, in := range inputs {
		switch in.Name {
		case "input_ids", "attention_mask", "token_type_ids":
			inputNames = append(inputNames, in.Name)
		}
	}
	if len(inputNames) == 0 {
		releaseEnvironment()
		return fmt.Errorf("model %s has no recognised inputs", cfg.ModelPath)
	}
	out, err := pickOutput(outputs)
	if err != nil {
		releaseEnvironment()
		return err
	}
	dims := out.Dimensions
	dim := int(dims[len(dims)-1])
	if dim <= 0 {
		releaseEnvironment()
		return fmt.Errorf("model output %s has dynamic hidden size", out.Name)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, []string{out.Name}, nil)
	if err != nil {
		releaseEnvironment()
		return fmt.Errorf("create session: %w", err)
	}

	maxSeq := cfg.MaxSeqLen
	if maxSeq <= 0 {
		maxSeq = 128
	}
	e.tk = tk
	e.session = session
	e.inputNames = inputNames
	e.outputName = out.Name
	e.pooled = len(dims) == 2
	e.dim = dim
	e.maxSeqLen = maxSeq
	return nil
}

func pickOutput(outputs []ort.InputOutputInfo) (ort.InputOutputInfo, error) {
	for _, want := range []string{"sentence_embedding", "last_hidden_state", "token_embeddings"} {
		for _, o := range outputs {
			if o.Name == want && len(o.Dimensions) >= 2 {
				return o, nil
			}
		}
	}
	for _, o := range outputs {
		if len(o.Dimensions) == 2 || len(o.Dimensions) == 3 {
			return o, nil
		}
	}
	return ort.InputOutputInfo{}, errors.New("model has no usable embedding output")
}

// Dim reports the embedding dimensionality.
func (e *Encoder) Dim() int {
	return e.dim
}

// Close releases the session and the shared environment reference.
func (e *Encoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return
	}
	_ = e.session.Destroy()
	e.session = nil
	releaseEnvironment()
}

// Encode returns the L2-normalized sentence embedding for text.
func (e *Encoder) Encode(text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil || e.tk == nil {
		return nil, errors.New("encoder is not initialized")
	}

	en, err := e.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	ids := en.Ids
	if len(ids) == 0 {
		return nil, errors.New("tokenizer produced no tokens")
	}
	if len(ids) > e.maxSeqLen {
		ids = ids[:e.maxSeqLen]
	}
	seqLen := len(ids)

	idData := make([]int64, seqLen)
	maskData := make([]int64, seqLen)
	typeData := make([]int64, seqLen)
	for i := 0; i < seqLen; i++ {
		idData[i] = int64(ids[i])
		maskData[i] = 1
		if i < len(en.AttentionMask) {
			maskData[i] = int64(en.AttentionMask[i])
		}
		if i < len(en.TypeIds) {
			typeData[i] = int64(en.TypeIds[i])
		}
	}

	shape := ort.NewShape(1, int64(seqLen))
	inputs := make([]ort.Value, 0, len(e.inputNames))
	defer func() {
		for _, v := range inputs {
			_ = v.Destroy()
		}
	}()
	for _, name := range e.inputNames {
		var data []int64
		switch name {
		case "input_ids":
			data = idData
		case "attention_mask":
			data = maskData
		default:
			data = typeData
		}
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("create %s tensor: %w", name, err)
		}
		inputs = append(inputs, t)
	}

	outShape := ort.NewShape(1, int64(seqLen), int64(e.dim))
	if e.pooled {
		outShape = ort.NewShape(1, int64(e.dim))
	}
	output, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := e.session.Run(inputs, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("run %s: %w", e.outputName, err)
	}

	raw := output.GetData()
	var vec []float32
	if e.pooled {
		vec = append([]float32(nil), raw[:e.dim]...)
	} else {
		vec = MeanPool(raw, maskData, e.dim)
	}
	Normalize(vec)
	return vec, nil
}

// MeanPool averages token vectors whose attention mask is set.
func MeanPool(hidden []float32, mask []int64, dim int) []float32 {
	out := make([]float32, dim)
	var count float32
	for t := range mask {
		if mask[t] == 0 {
			continue
		}
		base := t * dim
		if base+dim > len(hidden) {
			break
		}
		for d := 0; d < dim; d++ {
			out[d] += hidden[base+d]
		}
		count++
	}
	if count == 0 {
		return out
	}
	for d := range out {
		out[d] /= count
	}
	return out
}

// Normalize scales vec to unit length in place. Zero vectors are left as is.
func Normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
}
