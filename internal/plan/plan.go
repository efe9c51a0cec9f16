// Package plan turns configuration into the ordered operation list for a
// node install. Order matters: the service unit references the user and
// data directory created by earlier steps.
package plan

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fortressi/provision"
	"github.com/fortressi/provision/host"
	"github.com/fortressi/provision/internal/config"
	"github.com/fortressi/provision/mode"
	"github.com/fortressi/provision/ops"
)

type loggable interface {
	SetLogger(zerolog.Logger)
}

// Build returns the operations and transaction metadata for cfg. Calling it
// twice with the same configuration yields structurally identical lists,
// which is what resuming a transaction relies on.
func Build(h host.Host, cfg config.Config, logger zerolog.Logger) ([]provision.Operation, provision.Metadata, error) {
	layout := cfg.Layout()
	var list []provision.Operation

	if layout.ServiceUser != "root" {
		list = append(list, ops.NewCreateUser(h, layout.ServiceUser, layout.DataDir))
	}

	owner := ""
	if layout.ServiceUser != "root" {
		owner = layout.ServiceUser
	}
	dataDir := ops.NewMakeDirectory(h, layout.DataDir, 0o750, owner)
	dataDir.ConfigKey = "resolved_data_dir"
	list = append(list, dataDir)

	if len(cfg.Packages) > 0 {
		list = append(list, ops.NewInstallPackages(h, cfg.Packages...))
	}

	unit, err := ops.NewWriteServiceUnit(h, ops.Unit{
		Name:             cfg.Service.Name,
		Description:      fmt.Sprintf("%s node (%s)", cfg.NodeType, mode.Name(cfg.Mode)),
		User:             layout.ServiceUser,
		WorkingDirectory: layout.DataDir,
		ExecStart:        cfg.Service.ExecStart,
		After:            []string{"network-online.target"},
		Environment: map[string]string{
			"NODE_DATA_DIR":     layout.DataDir,
			"NODE_KEY_STRATEGY": string(layout.KeyStrategy),
		},
	}, cfg.Service.UnitDir)
	if err != nil {
		return nil, provision.Metadata{}, err
	}
	list = append(list, unit, ops.NewEnableService(h, cfg.Service.Name))

	for _, op := range list {
		if l, ok := op.(loggable); ok {
			l.SetLogger(logger)
		}
	}

	meta := provision.Metadata{
		Mode:     mode.Name(cfg.Mode),
		NodeType: cfg.NodeType,
		Configuration: map[string]any{
			"data_dir":     layout.DataDir,
			"service_user": layout.ServiceUser,
			"key_strategy": string(layout.KeyStrategy),
			"service_name": cfg.Service.Name,
		},
	}
	return list, meta, nil
}
