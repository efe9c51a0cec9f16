package ops

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"text/template"

	"github.com/fortressi/provision"
	"github.com/fortressi/provision/host"
)

// DefaultUnitDir is where systemd unit files are written.
const DefaultUnitDir = "/etc/systemd/system"

// Unit describes a systemd service unit.
type Unit struct {
	Name             string
	Description      string
	User             string
	WorkingDirectory string
	ExecStart        string
	After            []string
	Restart          string
	Environment      map[string]string
}

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description={{ .Description }}
{{- range .After }}
After={{ . }}
{{- end }}

[Service]
Type=simple
User={{ .User }}
{{- if .WorkingDirectory }}
WorkingDirectory={{ .WorkingDirectory }}
{{- end }}
ExecStart={{ .ExecStart }}
Restart={{ .Restart }}
{{- range .Env }}
Environment="{{ . }}"
{{- end }}

[Install]
WantedBy=multi-user.target
`))

// Render returns the unit file contents.
func (u Unit) Render() ([]byte, error) {
	env := make([]string, 0, len(u.Environment))
	for k, v := range u.Environment {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	restart := u.Restart
	if restart == "" {
		restart = "on-failure"
	}
	description := u.Description
	if description == "" {
		description = u.Name
	}

	var buf bytes.Buffer
	err := unitTemplate.Execute(&buf, struct {
		Unit
		Description string
		Restart     string
		Env         []string
	}{u, description, restart, env})
	if err != nil {
		return nil, fmt.Errorf("render unit %s: %w", u.Name, err)
	}
	return buf.Bytes(), nil
}

// WriteServiceUnit writes a systemd unit file and reloads systemd. Rollback
// restores the previous unit (or removes it) and reloads again.
type WriteServiceUnit struct {
	provision.BaseOperation
	host host.Host

	Unit Unit
	file *WriteFile
}

// NewWriteServiceUnit renders u into unitDir. An empty unitDir means
// DefaultUnitDir.
func NewWriteServiceUnit(h host.Host, u Unit, unitDir string) (*WriteServiceUnit, error) {
	if unitDir == "" {
		unitDir = DefaultUnitDir
	}
	content, err := u.Render()
	if err != nil {
		return nil, err
	}
	return &WriteServiceUnit{
		BaseOperation: provision.NewBaseOperation("write-service", fmt.Sprintf("Write service unit %s", u.Name)),
		host:          h,
		Unit:          u,
		file:          NewWriteFile(h, path.Join(unitDir, u.Name+".service"), content, 0o644),
	}, nil
}

// Path returns the unit file path.
func (o *WriteServiceUnit) Path() string {
	return o.file.Path
}

func (o *WriteServiceUnit) Validate(ctx context.Context) (bool, error) {
	if o.Unit.Name == "" || o.Unit.ExecStart == "" {
		return false, fmt.Errorf("service unit needs a name and ExecStart")
	}
	return o.file.Validate(ctx)
}

func (o *WriteServiceUnit) IsAlreadyDone(ctx context.Context) bool {
	return o.file.IsAlreadyDone(ctx)
}

func (o *WriteServiceUnit) Execute(ctx context.Context) (any, error) {
	value, err := o.file.Execute(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := o.host.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		if rbErr := o.file.Rollback(ctx); rbErr != nil {
			o.Logger().Error().Err(rbErr).Msg("failed to undo unit write")
		}
		return nil, fmt.Errorf("systemctl daemon-reload: %w", err)
	}
	o.MarkExecuted()
	return value, nil
}

func (o *WriteServiceUnit) Rollback(ctx context.Context) error {
	if !o.Executed() {
		return nil
	}
	if err := o.file.Rollback(ctx); err != nil {
		return err
	}
	o.ClearExecuted()
	if _, err := o.host.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("systemctl daemon-reload: %w", err)
	}
	return nil
}

func (o *WriteServiceUnit) DiscoveredConfiguration() map[string]any {
	return map[string]any{"service_unit_path": o.file.Path}
}

// EnableService enables and starts a systemd service.
type EnableService struct {
	provision.BaseOperation
	host host.Host

	Name string

	wasEnabled bool
	wasActive  bool
}

// NewEnableService creates an EnableService for name.
func NewEnableService(h host.Host, name string) *EnableService {
	return &EnableService{
		BaseOperation: provision.NewBaseOperation("enable-service", fmt.Sprintf("Enable and start service %s", name)),
		host:          h,
		Name:          name,
	}
}

func (o *EnableService) enabled(ctx context.Context) bool {
	_, err := o.host.Run(ctx, "systemctl", "is-enabled", "--quiet", o.Name)
	return err == nil
}

func (o *EnableService) active(ctx context.Context) bool {
	_, err := o.host.Run(ctx, "systemctl", "is-active", "--quiet", o.Name)
	return err == nil
}

func (o *EnableService) IsAlreadyDone(ctx context.Context) bool {
	return o.enabled(ctx) && o.active(ctx)
}

func (o *EnableService) Execute(ctx context.Context) (any, error) {
	o.wasEnabled = o.enabled(ctx)
	o.wasActive = o.active(ctx)

	if _, err := o.host.Run(ctx, "systemctl", "enable", "--now", o.Name); err != nil {
		return nil, fmt.Errorf("enable %s: %w", o.Name, err)
	}
	o.MarkExecuted()
	return map[string]any{"service": o.Name}, nil
}

func (o *EnableService) Rollback(ctx context.Context) error {
	if !o.Executed() {
		return nil
	}
	switch {
	case !o.wasEnabled:
		if _, err := o.host.Run(ctx, "systemctl", "disable", "--now", o.Name); err != nil {
			return fmt.Errorf("disable %s: %w", o.Name, err)
		}
	case !o.wasActive:
		if _, err := o.host.Run(ctx, "systemctl", "stop", o.Name); err != nil {
			return fmt.Errorf("stop %s: %w", o.Name, err)
		}
	}
	o.ClearExecuted()
	return nil
}
