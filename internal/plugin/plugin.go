// Package plugin runs language models out of process. A plugin binary calls
// Serve with its model; the host calls Launch with the binary's path and gets
// back an entity.LanguageModel.
package plugin

import (
	"context"
	"fmt"
	"net/rpc"
	"os"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"github.com/felixgeelhaar/persona/internal/action"
	"github.com/felixgeelhaar/persona/internal/entity"
)

// ModelPluginName is the key a model is dispensed under.
const ModelPluginName = "model"

// HandshakeConfig is used to handshake between host and plugin.
var HandshakeConfig = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "PERSONA_PLUGIN_MAGIC_COOKIE",
	MagicCookieValue: "persona-model",
}

// PluginMap is the set of plugins the host can dispense.
var PluginMap = map[string]plugin.Plugin{
	ModelPluginName: &ModelPlugin{},
}

// ModelPlugin is the go-plugin glue for an entity.LanguageModel served over
// net/rpc.
type ModelPlugin struct {
	Impl entity.LanguageModel
}

func (p *ModelPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &RPCServer{Impl: p.Impl}, nil
}

func (p *ModelPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RPCClient{client: c}, nil
}

// Spec is the wire form of action.Spec.
type Spec struct {
	Choice  bool
	Prompt  string
	Options []string
	Tag     string
}

// GenerateArgs is the request for a single Generate call.
type GenerateArgs struct {
	Name    string
	Context []string
	Spec    Spec
}

func toWire(s action.Spec) Spec {
	return Spec{Choice: s.IsChoice(), Prompt: s.Prompt(), Options: s.Options(), Tag: s.Tag()}
}

func fromWire(s Spec) (action.Spec, error) {
	if s.Choice {
		return action.NewChoice(s.Prompt, s.Options, s.Tag)
	}
	return action.NewFreeText(s.Prompt, s.Tag), nil
}

// RPCClient is the host-side LanguageModel.
type RPCClient struct {
	client *rpc.Client
}

// Generate implements entity.LanguageModel. Cancelling ctx returns
// immediately; the plugin's reply, if any, is discarded.
func (c *RPCClient) Generate(ctx context.Context, name string, lines []string, spec action.Spec) (string, error) {
	var reply string
	call := c.client.Go("Plugin.Generate", GenerateArgs{Name: name, Context: lines, Spec: toWire(spec)}, &reply, make(chan *rpc.Call, 1))

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-call.Done:
		if call.Error != nil {
			return "", fmt.Errorf("plugin generate: %w", call.Error)
		}
		return reply, nil
	}
}

// RPCServer is the plugin-side wrapper around a LanguageModel.
type RPCServer struct {
	Impl entity.LanguageModel
}

func (s *RPCServer) Generate(args GenerateArgs, reply *string) error {
	spec, err := fromWire(args.Spec)
	if err != nil {
		return err
	}
	out, err := s.Impl.Generate(context.Background(), args.Name, args.Context, spec)
	if err != nil {
		return err
	}
	*reply = out
	return nil
}

// Serve runs m as a plugin. It blocks until the host disconnects.
func Serve(m entity.LanguageModel) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins: map[string]plugin.Plugin{
			ModelPluginName: &ModelPlugin{Impl: m},
		},
	})
}

// Launch starts the plugin binary at path and returns its model plus a
// function that stops the process.
func Launch(path string, args ...string) (entity.LanguageModel, func(), error) {
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  HandshakeConfig,
		Plugins:          PluginMap,
		Cmd:              exec.Command(path, args...),
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
		Logger: hclog.New(&hclog.LoggerOptions{
			Name:   "plugin",
			Output: os.Stderr,
			Level:  hclog.Warn,
		}),
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("failed to start plugin %s: %w", path, err)
	}

	raw, err := rpcClient.Dispense(ModelPluginName)
	if err != nil {
		client.Kill()
		return nil, nil, fmt.Errorf("failed to dispense model from %s: %w", path, err)
	}

	m, ok := raw.(entity.LanguageModel)
	if !ok {
		client.Kill()
		return nil, nil, fmt.Errorf("plugin %s does not serve a language model", path)
	}
	return m, client.Kill, nil
}
