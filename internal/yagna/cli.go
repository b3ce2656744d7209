package yagna

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"yanode/internal/logging"
)

// CLIOption configures a daemon CLI wrapper.
type CLIOption func(*cli)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) CLIOption {
	return func(c *cli) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithLogger routes command tracing to logger.
func WithLogger(logger *slog.Logger) CLIOption {
	return func(c *cli) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type cli struct {
	binary string
	env    []string
	exec   Executor
	logger *slog.Logger
}

func newCLI(binary string, env []string, opts []CLIOption) cli {
	c := cli{
		binary: binary,
		env:    slices.Clone(env),
		exec:   commandExecutor{},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c cli) output(ctx context.Context, args ...string) ([]byte, error) {
	var buf bytes.Buffer
	c.logger.Debug("daemon command", logging.String("binary", c.binary), logging.String("args", strings.Join(args, " ")))
	err := c.exec.Run(ctx, c.binary, args, c.env, func(line string) {
		buf.WriteString(line)
		buf.WriteByte('\n')
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrCommandFailed, c.binary, strings.Join(args, " "), err)
	}
	return buf.Bytes(), nil
}

func (c cli) runJSON(ctx context.Context, out any, args ...string) error {
	data, err := c.output(ctx, args...)
	if err != nil {
		return err
	}
	payload, err := unwrapResult(data)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrCommandFailed, c.binary, strings.Join(args, " "), err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: decode %s %s output: %w", ErrCommandFailed, c.binary, strings.Join(args, " "), err)
	}
	return nil
}

// unwrapResult strips an {"Ok": ...} envelope and turns {"Err": ...} into an
// error. Output without an envelope is returned as-is.
func unwrapResult(data []byte) (json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty output")
	}
	if data[0] != '{' {
		return data, nil
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return data, nil
	}
	_, hasOk := keys["Ok"]
	_, hasErr := keys["Err"]
	if !hasOk && !hasErr {
		return data, nil
	}
	var env result
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if len(env.Err) > 0 && string(env.Err) != "null" {
		return nil, fmt.Errorf("daemon reported error: %s", errorText(env.Err))
	}
	return env.Ok, nil
}

func errorText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// table is the {headers, values} shape some list commands print.
type table struct {
	Headers []string `json:"headers"`
	Values  [][]any  `json:"values"`
}

// decodeRows accepts either a JSON array of objects or a table and decodes
// it into out, which must point to a slice.
func decodeRows(data []byte, out any) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, out)
	}
	var t table
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	rows := make([]map[string]any, 0, len(t.Values))
	for _, values := range t.Values {
		row := make(map[string]any, len(t.Headers))
		for i, header := range t.Headers {
			if i < len(values) {
				row[header] = values[i]
			}
		}
		rows = append(rows, row)
	}
	encoded, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, out)
}

// YagnaCLI wraps the network daemon's command line.
type YagnaCLI struct {
	cli
}

// NewYagnaCLI builds a wrapper that runs binary with env.
func NewYagnaCLI(binary string, env []string, opts ...CLIOption) *YagnaCLI {
	return &YagnaCLI{cli: newCLI(binary, env, opts)}
}

// IdentityShow returns the default identity.
func (y *YagnaCLI) IdentityShow(ctx context.Context) (IDInfo, error) {
	var info IDInfo
	if err := y.runJSON(ctx, &info, "--json", "id", "show"); err != nil {
		return IDInfo{}, err
	}
	return info, nil
}

// AppKeys lists application keys.
func (y *YagnaCLI) AppKeys(ctx context.Context) ([]KeyInfo, error) {
	data, err := y.output(ctx, "--json", "app-key", "list")
	if err != nil {
		return nil, err
	}
	payload, err := unwrapResult(data)
	if err != nil {
		return nil, fmt.Errorf("%w: app-key list: %w", ErrCommandFailed, err)
	}
	var keys []KeyInfo
	if err := decodeRows(payload, &keys); err != nil {
		return nil, fmt.Errorf("%w: decode app-key list: %w", ErrCommandFailed, err)
	}
	return keys, nil
}

// AppKey returns the first key whose name matches one of names, in order.
func (y *YagnaCLI) AppKey(ctx context.Context, names ...string) (KeyInfo, bool, error) {
	keys, err := y.AppKeys(ctx)
	if err != nil {
		return KeyInfo{}, false, err
	}
	key, ok := FindKey(keys, names...)
	return key, ok, nil
}

// FindKey picks the first key matching names in priority order.
func FindKey(keys []KeyInfo, names ...string) (KeyInfo, bool) {
	for _, name := range names {
		for _, key := range keys {
			if key.Name == name {
				return key, true
			}
		}
	}
	return KeyInfo{}, false
}

// PaymentAccount selects the account a payment command applies to.
type PaymentAccount struct {
	Network string
	Driver  string
	Account string
}

func (a PaymentAccount) args() []string {
	args := []string{"--network", a.Network, "--driver", a.Driver}
	if strings.TrimSpace(a.Account) != "" {
		args = append(args, "--account", a.Account)
	}
	return args
}

// PaymentInit enables receiving payments on the account.
func (y *YagnaCLI) PaymentInit(ctx context.Context, account PaymentAccount) error {
	args := append([]string{"payment", "init", "--receiver"}, account.args()...)
	_, err := y.output(ctx, args...)
	return err
}

// PaymentStatus returns the account summary.
func (y *YagnaCLI) PaymentStatus(ctx context.Context, account PaymentAccount) (PaymentStatus, error) {
	var status PaymentStatus
	args := append([]string{"--json", "payment", "status"}, account.args()...)
	if err := y.runJSON(ctx, &status, args...); err != nil {
		return PaymentStatus{}, err
	}
	return status, nil
}

// ActivityStatus returns activity counters.
func (y *YagnaCLI) ActivityStatus(ctx context.Context) (ActivityStatus, error) {
	var status ActivityStatus
	if err := y.runJSON(ctx, &status, "--json", "activity", "status"); err != nil {
		return ActivityStatus{}, err
	}
	return status, nil
}
