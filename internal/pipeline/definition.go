package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
)

const (
	KindCommand = "command"
	KindDbt     = "dbt"
	KindLoad    = "load"
	KindEnrich  = "enrich"
)

// Definition is the declarative form of a pipeline as read from YAML.
type Definition struct {
	Name   string            `yaml:"name" validate:"required"`
	Stages []StageDefinition `yaml:"stages" validate:"required,min=1,dive"`
}

type StageDefinition struct {
	Name      string    `yaml:"name" validate:"required"`
	Kind      string    `yaml:"kind" validate:"required,oneof=command dbt load enrich"`
	DependsOn []string  `yaml:"depends_on" validate:"dive,required"`
	Config    yaml.Node `yaml:"config" validate:"-"`
}

// CommandConfig launches an interpreter on a script.
type CommandConfig struct {
	ScriptPath  string            `yaml:"script_path" validate:"required"`
	Interpreter string            `yaml:"interpreter" validate:"required"`
	Args        []string          `yaml:"args"`
	WorkDir     string            `yaml:"work_dir"`
	Env         map[string]string `yaml:"env"`
	Timeout     time.Duration     `yaml:"timeout" validate:"gte=0"`
}

// DbtConfig runs the analytical transformation tool inside a project.
type DbtConfig struct {
	ProjectDir  string        `yaml:"project_dir" validate:"required"`
	Binary      string        `yaml:"binary" validate:"required"`
	Command     string        `yaml:"command" validate:"required"`
	ProfilesDir string        `yaml:"profiles_dir"`
	Target      string        `yaml:"target"`
	Timeout     time.Duration `yaml:"timeout" validate:"gte=0"`
}

// LoadConfig moves lake files into the store. Directories are relative to LakeRoot.
type LoadConfig struct {
	LakeRoot    string `yaml:"lake_root" validate:"required"`
	MessagesDir string `yaml:"messages_dir" validate:"required"`
	ImagesDir   string `yaml:"images_dir" validate:"required"`
	BatchSize   int    `yaml:"batch_size" validate:"gte=0"`
}

// EnrichConfig labels attachments that have no annotation yet.
type EnrichConfig struct {
	ArtifactBaseDir string  `yaml:"artifact_base_dir" validate:"required"`
	MinScore        float64 `yaml:"min_score" validate:"gte=0,lte=1"`
	BatchSize       int     `yaml:"batch_size" validate:"gte=0"`
}

// Vars are the per-run values substituted into a definition before parsing.
type Vars struct {
	RunID   string
	RunDate time.Time
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadDefinition reads path, expands ${RUN_DATE}, ${RUN_ID} and environment
// variables, and validates the result. Every call re-reads the file so each
// run sees the definition as it is at trigger time.
func LoadDefinition(path string, vars Vars) (*Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline definition: %w", err)
	}
	return ParseDefinition(raw, vars)
}

func ParseDefinition(raw []byte, vars Vars) (*Definition, error) {
	expanded := os.Expand(string(raw), func(key string) string {
		switch key {
		case "RUN_ID":
			return vars.RunID
		case "RUN_DATE":
			return vars.RunDate.Format("2006-01-02")
		default:
			return os.Getenv(key)
		}
	})

	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	decoder.KnownFields(true)
	var def Definition
	if err := decoder.Decode(&def); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse pipeline definition", err)
	}
	if err := validate.Struct(def); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate pipeline definition", err)
	}
	for i := range def.Stages {
		if _, err := def.Stages[i].TypedConfig(); err != nil {
			return nil, err
		}
	}
	return &def, nil
}

// TypedConfig decodes the stage config block into the struct for its kind,
// applying defaults before decoding and validation after.
func (s StageDefinition) TypedConfig() (any, error) {
	var cfg any
	switch s.Kind {
	case KindCommand:
		cfg = &CommandConfig{Interpreter: "python"}
	case KindDbt:
		cfg = &DbtConfig{Binary: "dbt", Command: "run"}
	case KindLoad:
		cfg = &LoadConfig{LakeRoot: "."}
	case KindEnrich:
		cfg = &EnrichConfig{MinScore: 0.01}
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode stage config", fmt.Errorf("stage %q has unknown kind %q", s.Name, s.Kind))
	}

	if !s.Config.IsZero() {
		if err := s.Config.Decode(cfg); err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "decode stage config", fmt.Errorf("stage %q: %w", s.Name, err))
		}
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate stage config", fmt.Errorf("stage %q: %w", s.Name, err))
	}
	return cfg, nil
}

// Snapshot returns the stage config as a plain map for run records.
func (s StageDefinition) Snapshot() map[string]any {
	if s.Config.IsZero() {
		return nil
	}
	var out map[string]any
	if err := s.Config.Decode(&out); err != nil {
		return nil
	}
	return out
}
