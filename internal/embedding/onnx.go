//go:build onnx && cgo

package embedding

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/flexigpt/skillcore-go/spec"
)

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

// ONNXConfig configures a local in-process embedding model.
type ONNXConfig struct {
	ModelPath         string
	VocabPath         string
	SharedLibraryPath string
	Dimension         int
	MaxSequenceLength int
}

// ONNXService runs a local transformer encoder through onnxruntime and
// mean-pools its last hidden state into a unit embedding vector. Adapted
// from a MiniLM-style sentence-embedding engine; this module's tool
// descriptions are short enough that mean pooling over the whole sequence
// is a reasonable summary vector.
type ONNXService struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *vocabTokenizer
	dim       int
	maxLen    int

	mu sync.RWMutex
}

// NewONNX loads cfg.ModelPath and initializes the onnxruntime environment.
// Must be called once per process; concurrent NewONNX calls are not
// supported by the underlying runtime.
func NewONNX(cfg ONNXConfig) (*ONNXService, error) {
	if cfg.ModelPath == "" {
		return nil, spec.NewError(spec.KindInternal, "embedding.NewONNX", fmt.Errorf("model path is required"))
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 384
	}
	if cfg.MaxSequenceLength <= 0 {
		cfg.MaxSequenceLength = 256
	}

	if cfg.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, spec.NewError(spec.KindEmbeddingUnavailable, "embedding.NewONNX", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, spec.NewError(spec.KindEmbeddingUnavailable, "embedding.NewONNX", err)
	}
	defer opts.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		opts,
	)
	if err != nil {
		return nil, spec.NewError(spec.KindEmbeddingUnavailable, "embedding.NewONNX", err)
	}

	tok, err := newVocabTokenizer(cfg.VocabPath)
	if err != nil {
		session.Destroy()
		return nil, spec.NewError(spec.KindEmbeddingUnavailable, "embedding.NewONNX", err)
	}

	return &ONNXService{session: session, tokenizer: tok, dim: cfg.Dimension, maxLen: cfg.MaxSequenceLength}, nil
}

func (s *ONNXService) Dimension() int { return s.dim }

func (s *ONNXService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (s *ONNXService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return concurrentBatch(ctx, texts, 4, s.embedOne)
}

func (s *ONNXService) embedOne(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, mask, typeIDs := s.tokenizer.Tokenize(text, s.maxLen)
	seqLen := int64(len(ids))

	inputIDs, err := ort.NewTensor(ort.NewShape(1, seqLen), ids)
	if err != nil {
		return nil, spec.NewError(spec.KindEmbeddingUnavailable, "embedding.ONNXService.embedOne", err)
	}
	defer inputIDs.Destroy()

	attnMask, err := ort.NewTensor(ort.NewShape(1, seqLen), mask)
	if err != nil {
		return nil, spec.NewError(spec.KindEmbeddingUnavailable, "embedding.ONNXService.embedOne", err)
	}
	defer attnMask.Destroy()

	tokenTypes, err := ort.NewTensor(ort.NewShape(1, seqLen), typeIDs)
	if err != nil {
		return nil, spec.NewError(spec.KindEmbeddingUnavailable, "embedding.ONNXService.embedOne", err)
	}
	defer tokenTypes.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, seqLen, int64(s.dim)))
	if err != nil {
		return nil, spec.NewError(spec.KindEmbeddingUnavailable, "embedding.ONNXService.embedOne", err)
	}
	defer output.Destroy()

	if err := s.session.Run(
		[]ort.ArbitraryTensor{inputIDs, attnMask, tokenTypes},
		[]ort.ArbitraryTensor{output},
	); err != nil {
		return nil, spec.NewError(spec.KindEmbeddingUnavailable, "embedding.ONNXService.embedOne", err)
	}

	pooled := meanPool(output.GetData(), mask, int(seqLen), s.dim)
	return normalize(pooled), nil
}

func meanPool(hidden []float32, mask []int64, seqLen, dim int) []float32 {
	out := make([]float32, dim)
	var weight float32
	for i := 0; i < seqLen; i++ {
		if mask[i] == 0 {
			continue
		}
		for j := 0; j < dim; j++ {
			out[j] += hidden[i*dim+j]
		}
		weight++
	}
	if weight > 0 {
		for j := range out {
			out[j] /= weight
		}
	}
	return out
}

// Close releases the onnxruntime session.
func (s *ONNXService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	return nil
}

// vocabTokenizer is a minimal WordPiece-style tokenizer sufficient for
// short tool descriptions: whitespace split plus a vocabulary lookup,
// falling back to an [UNK] id.
type vocabTokenizer struct {
	ids map[string]int64
	unk int64
	cls int64
	sep int64
	pad int64
}

func newVocabTokenizer(path string) (*vocabTokenizer, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	t := &vocabTokenizer{ids: make(map[string]int64, len(lines))}
	for i, tok := range lines {
		t.ids[tok] = int64(i)
		switch tok {
		case "[UNK]":
			t.unk = int64(i)
		case "[CLS]":
			t.cls = int64(i)
		case "[SEP]":
			t.sep = int64(i)
		case "[PAD]":
			t.pad = int64(i)
		}
	}
	return t, nil
}

func (t *vocabTokenizer) Tokenize(text string, maxLen int) (ids, mask, typeIDs []int64) {
	words := strings.Fields(strings.ToLower(text))

	ids = append(ids, t.cls)
	for _, w := range words {
		if len(ids) >= maxLen-1 {
			break
		}
		id, ok := t.ids[w]
		if !ok {
			id = t.unk
		}
		ids = append(ids, id)
	}
	ids = append(ids, t.sep)

	for len(ids) < maxLen {
		ids = append(ids, t.pad)
	}

	mask = make([]int64, maxLen)
	typeIDs = make([]int64, maxLen)
	for i := range mask {
		if ids[i] != t.pad || i == 0 {
			mask[i] = 1
		}
	}
	return ids, mask, typeIDs
}
