package embed

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	memexerrors "github.com/memexmcp/memex/internal/errors"
)

const modelFileName = "model.onnx"

// LocalEmbedder runs on-device transformer inference via ONNX Runtime,
// tokenizing with a hand-written WordPiece implementation so greedy-prefix
// subword splitting exactly matches the documented algorithm.
type LocalEmbedder struct {
	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	tokenizer *Tokenizer
	modelPath string
}

// ResolveModelPath implements the configured-path / next-to-binary /
// cwd resolution order, failing clearly if none has a model file.
func ResolveModelPath(configured string) (string, error) {
	candidates := []string{}
	if configured != "" {
		candidates = append(candidates, configured)
	}

	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "Models", modelFileName))
	}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, "Models", modelFileName))
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}

	return "", memexerrors.New(memexerrors.KindEmbedderError, "embedding model not found: configure model_path, or place model.onnx under a Models/ directory next to the binary or in the current directory")
}

// NewLocalEmbedder constructs a LocalEmbedder without loading the ONNX
// session; the session is created lazily on first use.
func NewLocalEmbedder(modelPath string) *LocalEmbedder {
	return &LocalEmbedder{modelPath: modelPath}
}

// ensureLoaded lazily initializes the ONNX session and vocabulary. Callers
// must hold e.mu.
func (e *LocalEmbedder) ensureLoaded() error {
	if e.session != nil {
		return nil
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return memexerrors.Wrap(memexerrors.KindEmbedderError, "initialize onnx runtime", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return memexerrors.Wrap(memexerrors.KindEmbedderError, "create onnx session options", err)
	}
	defer opts.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		e.modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		opts,
	)
	if err != nil {
		return memexerrors.Wrap(memexerrors.KindEmbedderError, "create onnx session", err)
	}

	tokenizer, err := NewTokenizer()
	if err != nil {
		session.Destroy()
		return memexerrors.Wrap(memexerrors.KindEmbedderError, "load tokenizer vocabulary", err)
	}

	e.session = session
	e.tokenizer = tokenizer
	return nil
}

// Embed embeds a single text.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch runs inference for up to DefaultBatchSize texts at a time. The
// underlying session is serialized behind a mutex since ONNX sessions are
// not guaranteed thread-safe.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += DefaultBatchSize {
		end := i + DefaultBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		batch, err := e.embedBatch(texts[i:end])
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)
	}
	return results, nil
}

func (e *LocalEmbedder) embedBatch(texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureLoaded(); err != nil {
		return nil, err
	}

	batchSize := len(texts)
	flatIDs := make([]int64, 0, batchSize*MaxSeqLen)
	flatMask := make([]int64, 0, batchSize*MaxSeqLen)
	flatType := make([]int64, 0, batchSize*MaxSeqLen)
	masks := make([][]int64, batchSize)

	for i, text := range texts {
		enc := e.tokenizer.Encode(text, MaxSeqLen)
		flatIDs = append(flatIDs, enc.InputIDs...)
		flatMask = append(flatMask, enc.AttentionMask...)
		flatType = append(flatType, enc.TokenTypeIDs...)
		masks[i] = enc.AttentionMask
	}

	shape := ort.NewShape(int64(batchSize), int64(MaxSeqLen))

	inputIDs, err := ort.NewTensor(shape, flatIDs)
	if err != nil {
		return nil, memexerrors.Wrap(memexerrors.KindEmbedderError, "build input_ids tensor", err)
	}
	defer inputIDs.Destroy()

	attnMask, err := ort.NewTensor(shape, flatMask)
	if err != nil {
		return nil, memexerrors.Wrap(memexerrors.KindEmbedderError, "build attention_mask tensor", err)
	}
	defer attnMask.Destroy()

	typeIDs, err := ort.NewTensor(shape, flatType)
	if err != nil {
		return nil, memexerrors.Wrap(memexerrors.KindEmbedderError, "build token_type_ids tensor", err)
	}
	defer typeIDs.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inputIDs, attnMask, typeIDs}, outputs); err != nil {
		return nil, memexerrors.Wrap(memexerrors.KindEmbedderError, "run onnx inference", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	hiddenTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, memexerrors.New(memexerrors.KindEmbedderError, "unexpected onnx output type")
	}
	hidden := hiddenTensor.GetData()

	embeddings := make([][]float32, batchSize)
	for i := 0; i < batchSize; i++ {
		embeddings[i] = meanPool(hidden, masks[i], i, MaxSeqLen, Dimensions)
	}
	return embeddings, nil
}

// meanPool averages hidden states over positions where mask == 1, then
// L2-normalizes. A zero-count mask (shouldn't happen; CLS is always
// present) leaves a zero vector.
func meanPool(hidden []float32, mask []int64, batchIdx, seqLen, dim int) []float32 {
	vec := make([]float32, dim)
	var count float32
	base := batchIdx * seqLen * dim

	for t := 0; t < seqLen; t++ {
		if mask[t] == 0 {
			continue
		}
		offset := base + t*dim
		for d := 0; d < dim; d++ {
			vec[d] += hidden[offset+d]
		}
		count++
	}

	if count > 0 {
		for d := range vec {
			vec[d] /= count
		}
	}

	l2Normalize(vec)
	return vec
}

// Dimensions returns the local model's output dimension.
func (e *LocalEmbedder) Dimensions() int { return Dimensions }

// ModelName identifies the local model for cache keys and status reporting.
func (e *LocalEmbedder) ModelName() string { return "local-onnx" }

// Available reports whether the model file can be resolved and loaded.
func (e *LocalEmbedder) Available(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ensureLoaded() == nil
}

// Close releases the ONNX session.
func (e *LocalEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	return nil
}
