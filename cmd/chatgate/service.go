package main

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/flemzord/chatgate/internal/config"
	"github.com/flemzord/chatgate/pkg/app"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
)

// program adapts the application to the service manager lifecycle.
type program struct {
	params app.RunParams

	mu   sync.Mutex
	inst *app.Instance
}

// Start implements service.Interface. It must not block.
func (p *program) Start(service.Service) error {
	inst, err := app.Start(p.params)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.inst = inst
	p.mu.Unlock()
	return nil
}

// Stop implements service.Interface.
func (p *program) Stop(service.Service) error {
	p.mu.Lock()
	inst := p.inst
	p.inst = nil
	p.mu.Unlock()
	if inst != nil {
		inst.Stop()
	}
	return nil
}

// serviceConfig describes the system service. The config path is made
// absolute because service managers do not keep the working directory.
func serviceConfig(cfgPath string) (*service.Config, error) {
	path, err := config.Find(cfgPath)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &service.Config{
		Name:        "chatgate",
		DisplayName: "chatgate",
		Description: "Passcode-gated chat front end for LLM providers",
		Arguments:   []string{"service", "run", "-c", abs},
	}, nil
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage chatgate as a system service",
	}
	cmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file")

	for _, action := range []string{"install", "uninstall", "start", "stop", "restart"} {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the system service", action),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				s, err := newService(cmd)
				if err != nil {
					return err
				}
				if err := service.Control(s, action); err != nil {
					return fmt.Errorf("service %s: %w", action, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Service %s: ok\n", action)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newService(cmd)
			if err != nil {
				return err
			}
			return s.Run()
		},
	})
	return cmd
}

func newService(cmd *cobra.Command) (service.Service, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	svcCfg, err := serviceConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	prg := &program{params: app.RunParams{
		ConfigPath: svcCfg.Arguments[len(svcCfg.Arguments)-1],
		Version:    version,
		Commit:     commit,
		Date:       date,
	}}
	return service.New(prg, svcCfg)
}
