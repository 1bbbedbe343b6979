package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	"github.com/viant/afs"
	"github.com/viant/afs/url"
	"github.com/viant/procflow"
	"github.com/viant/procflow/model"
	"github.com/viant/procflow/runtime/execution"
	"github.com/viant/procflow/service/dao/workflow"
	"github.com/viant/procflow/service/task"
	"gopkg.in/yaml.v3"
)

// Globals are shared by every command.
type Globals struct {
	Config string `help:"Service config URL (yaml)." short:"c"`
	Debug  bool   `help:"Enable debug logging."`

	out io.Writer `kong:"-"`
}

type CLI struct {
	Globals

	Validate ValidateCmd `cmd:"" help:"Parse and validate a workflow definition."`
	Run      RunCmd      `cmd:"" help:"Run a workflow definition to completion."`
}

type ValidateCmd struct {
	File string `arg:"" help:"Workflow definition URL or path."`
}

func (c *ValidateCmd) Run(globals *Globals) error {
	aWorkflow, err := loadWorkflow(context.Background(), c.File)
	if err != nil {
		return err
	}
	fmt.Fprintf(globals.out, "%s: valid (%d activities, %d transitions)\n", aWorkflow.Key(), len(aWorkflow.Activities), len(aWorkflow.Transitions))
	return nil
}

type RunCmd struct {
	File    string            `arg:"" help:"Workflow definition URL or path."`
	Input   map[string]string `help:"Initial variables; values are decoded as yaml scalars." short:"i"`
	User    string            `help:"Initiator and task completing user." default:"cli"`
	Approve bool              `help:"Complete every human task with the approval outputs."`
	Output  map[string]string `help:"Outputs used when completing human tasks." default:"approved=true"`
	Timeout time.Duration     `help:"Maximum time to wait." default:"1m"`
}

func (c *RunCmd) Run(globals *Globals) error {
	ctx := context.Background()
	aWorkflow, err := loadWorkflow(ctx, c.File)
	if err != nil {
		return err
	}
	options := []procflow.Option{procflow.WithLogger(globals.logger())}
	if globals.Config != "" {
		config, err := procflow.LoadConfig(ctx, location(globals.Config))
		if err != nil {
			return err
		}
		options = append(options, procflow.WithConfig(config))
	}
	srv, err := procflow.New(options...)
	if err != nil {
		return err
	}
	runtime := srv.Runtime()
	if err = runtime.Start(ctx); err != nil {
		return err
	}
	defer runtime.Shutdown(context.Background())
	if _, err = runtime.RegisterWorkflow(ctx, aWorkflow); err != nil {
		return err
	}
	inputs, err := decodeValues(c.Input)
	if err != nil {
		return err
	}
	id, wait, err := runtime.StartProcess(ctx, aWorkflow.Key(), c.User, inputs)
	if err != nil {
		return err
	}
	if c.Approve {
		outputs, err := decodeValues(c.Output)
		if err != nil {
			return err
		}
		stop := task.AutoApprove(ctx, runtime.Tasks(), runtime, c.User, outputs, 10*time.Millisecond)
		defer stop()
	}
	snapshot, err := waitFinal(ctx, wait, c.Timeout, c.Approve)
	if err != nil {
		return fmt.Errorf("process %s: %w", id, err)
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(globals.out, string(data))
	if snapshot.Status == execution.StatusFailed {
		return fmt.Errorf("process %s failed: %s", id, snapshot.Error)
	}
	return nil
}

// waitFinal keeps waiting through the waiting state while tasks are being
// approved.
func waitFinal(ctx context.Context, wait procflow.Wait, timeout time.Duration, approve bool) (*execution.Snapshot, error) {
	deadline := time.Now().Add(timeout)
	for {
		snapshot, err := wait(ctx, time.Until(deadline))
		if err != nil {
			return nil, err
		}
		if !approve || snapshot.Status != execution.StatusWaiting {
			return snapshot, nil
		}
		time.Sleep(10 * time.Millisecond)
		if time.Until(deadline) <= 0 {
			return snapshot, nil
		}
	}
}

func (g *Globals) logger() *slog.Logger {
	level := slog.LevelWarn
	if g.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadWorkflow(ctx context.Context, file string) (*model.Workflow, error) {
	URL := location(file)
	data, err := afs.New().DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", URL, err)
	}
	return workflow.New().DecodeYAML(data)
}

func location(file string) string {
	if !url.IsRelative(file) {
		return file
	}
	if abs, err := filepath.Abs(file); err == nil {
		return abs
	}
	return file
}

func decodeValues(values map[string]string) (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(values))
	for k, v := range values {
		var value interface{}
		if err := yaml.Unmarshal([]byte(v), &value); err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", k, err)
		}
		result[k] = value
	}
	return result, nil
}

func execute(args []string, out io.Writer) error {
	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("procflow"),
		kong.Description("Workflow definition runner."),
		kong.Writers(out, out),
		kong.UsageOnError(),
	)
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	cli.Globals.out = out
	return ctx.Run(&cli.Globals)
}
