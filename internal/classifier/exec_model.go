package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/loqalabs/loqa-intent/internal/config"
)

// execModel shells out to an external inference runner. The runner is
// queried once with --describe for its tensor contract, then invoked per
// forward pass with the flat input on stdin and the flat scores on stdout,
// both JSON.
type execModel struct {
	cmd       []string
	modelPath string
	input     []int
	output    []int
	element   ElementType
	mu        sync.Mutex
	closed    bool
}

type describeResponse struct {
	InputShape  []int  `json:"input_shape"`
	OutputShape []int  `json:"output_shape"`
	ElementType string `json:"element_type"`
}

type inferRequest struct {
	Input []float32 `json:"input"`
}

type inferResponse struct {
	Scores []float32 `json:"scores"`
}

// NewExecModel loads a model through an external runner command.
func NewExecModel(ctx context.Context, cfg config.ClassifierConfig) (Model, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: parse classifier command: %v", ErrInitialization, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: classifier command is empty", ErrInitialization)
	}

	m := &execModel{cmd: args, modelPath: cfg.ModelPath}

	describeArgs := append(append([]string{}, args[1:]...), "--describe")
	if cfg.ModelPath != "" {
		describeArgs = append(describeArgs, "--model", cfg.ModelPath)
	}
	command := exec.CommandContext(ctx, args[0], describeArgs...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("%w: describe model: %v: %s", ErrInitialization, err, stderr.String())
	}

	var desc describeResponse
	if err := json.Unmarshal(stdout.Bytes(), &desc); err != nil {
		return nil, fmt.Errorf("%w: decode describe response: %v", ErrInitialization, err)
	}
	if len(desc.InputShape) == 0 || len(desc.OutputShape) == 0 {
		return nil, fmt.Errorf("%w: runner reported empty tensor shapes", ErrInitialization)
	}
	if ElementType(desc.ElementType) != Float32 {
		return nil, fmt.Errorf("%w: element type %q, only float32 tensors are supported", ErrUnsupportedModel, desc.ElementType)
	}

	m.input = desc.InputShape
	m.output = desc.OutputShape
	m.element = Float32
	return m, nil
}

func (m *execModel) InputShape() []int        { return m.input }
func (m *execModel) OutputShape() []int       { return m.output }
func (m *execModel) ElementType() ElementType { return m.element }

func (m *execModel) Invoke(ctx context.Context, input []float32) ([]float32, error) {
	// The subprocess handle is not reentrant.
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("model is closed")
	}

	payload, err := json.Marshal(inferRequest{Input: input})
	if err != nil {
		return nil, fmt.Errorf("encode inference request: %w", err)
	}

	inferArgs := append(append([]string{}, m.cmd[1:]...), "--infer")
	if m.modelPath != "" {
		inferArgs = append(inferArgs, "--model", m.modelPath)
	}
	command := exec.CommandContext(ctx, m.cmd[0], inferArgs...)
	command.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("inference command failed: %w: %s", err, stderr.String())
	}

	var resp inferResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}
	return resp.Scores, nil
}

func (m *execModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
