//go:build llama

package manager

import (
	"context"
	"errors"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// llamaHandle owns one loaded correction model.
type llamaHandle struct {
	model   *llama.LLama
	threads int
}

// loadLlamaModel loads a gguf model for in-process correction. Expensive;
// only ever called through the model cache.
func loadLlamaModel(path string, ctxSize, threads int) (ModelHandle, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("model path is empty")
	}
	if ctxSize <= 0 {
		ctxSize = 2048
	}
	m, err := llama.New(path, llama.SetContext(ctxSize))
	if err != nil {
		return nil, err
	}
	return &llamaHandle{model: m, threads: threads}, nil
}

func (h *llamaHandle) Infer(ctx context.Context, input string, params InferParams) (string, error) {
	if h.model == nil {
		return "", errors.New("llama model not initialized")
	}
	// Stop generation as soon as the context is canceled.
	h.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	})
	prompt := params.SystemPrompt + "\n\n" + input
	po := []llama.PredictOption{
		llama.SetTokens(maxInt(1, params.MaxTokens)),
		llama.SetThreads(maxInt(1, h.threads)),
	}
	if params.Temperature > 0 {
		po = append(po, llama.SetTemperature(params.Temperature))
	}
	if params.TopP > 0 {
		po = append(po, llama.SetTopP(params.TopP))
	}
	text, err := h.model.Predict(prompt, po...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return text, nil
}

func (h *llamaHandle) Close() error {
	if h.model != nil {
		h.model.Free()
		h.model = nil
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
