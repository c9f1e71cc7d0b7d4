// Package seed loads the chart templates and bank providers shipped with the
// binary. Every step is idempotent and runs on each startup.
package seed

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	accountdomain "github.com/anoteng/regnskap/internal/account/domain"
	banksyncdomain "github.com/anoteng/regnskap/internal/banksync/domain"
	banksyncrepo "github.com/anoteng/regnskap/internal/banksync/repository"
	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed data/*.yaml
var data embed.FS

const providersFile = "data/providers.yaml"

type templateFile struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Default     bool   `yaml:"default"`
	Accounts    []struct {
		Number  string `yaml:"number"`
		Name    string `yaml:"name"`
		Type    string `yaml:"type"`
		Parent  string `yaml:"parent"`
		Default bool   `yaml:"default"`
	} `yaml:"accounts"`
}

type providersFileContent struct {
	Providers []struct {
		Name             string            `yaml:"name"`
		DisplayName      string            `yaml:"display_name"`
		Environment      string            `yaml:"environment"`
		AuthorizationURL string            `yaml:"authorization_url"`
		TokenURL         string            `yaml:"token_url"`
		APIBaseURL       string            `yaml:"api_base_url"`
		Config           map[string]string `yaml:"config"`
	} `yaml:"providers"`
}

// Run seeds chart templates and providers.
func Run(ctx context.Context, db *gorm.DB, log *zap.Logger) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	templates, err := EnsureTemplates(ctx, db, node)
	if err != nil {
		return fmt.Errorf("seed chart templates: %w", err)
	}
	providers, err := EnsureProviders(ctx, db, node, os.Getenv)
	if err != nil {
		return fmt.Errorf("seed bank providers: %w", err)
	}
	log.Info("seed data ensured", zap.Int("templates", templates), zap.Int("providers", providers))
	return nil
}

// EnsureTemplates inserts missing templates and missing template accounts.
// Existing rows are left untouched.
func EnsureTemplates(ctx context.Context, db *gorm.DB, node *snowflake.Node) (int, error) {
	files, err := fs.Glob(data, "data/*.yaml")
	if err != nil {
		return 0, err
	}

	count := 0
	for _, name := range files {
		if name == providersFile {
			continue
		}
		raw, err := data.ReadFile(name)
		if err != nil {
			return count, err
		}
		var file templateFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return count, fmt.Errorf("%s: %w", name, err)
		}
		if err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return ensureTemplate(ctx, tx, node, file)
		}); err != nil {
			return count, fmt.Errorf("%s: %w", name, err)
		}
		count++
	}
	return count, nil
}

func ensureTemplate(ctx context.Context, tx *gorm.DB, node *snowflake.Node, file templateFile) error {
	now := time.Now().UTC()
	template := accountdomain.Template{
		ID:        node.Generate(),
		Name:      file.Name,
		Slug:      slug.Make(file.Name),
		IsDefault: file.Default,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if description := strings.TrimSpace(file.Description); description != "" {
		template.Description = &description
	}
	if err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&template).Error; err != nil {
		return err
	}

	var templateID snowflake.ID
	if err := tx.WithContext(ctx).Raw(`SELECT id FROM chart_templates WHERE name = ?`, file.Name).Scan(&templateID).Error; err != nil {
		return err
	}
	if templateID == 0 {
		return fmt.Errorf("template %s missing after insert", file.Name)
	}

	for i, item := range file.Accounts {
		accountType, err := accountdomain.ParseType(item.Type)
		if err != nil {
			return fmt.Errorf("account %s: %w", item.Number, err)
		}
		account := accountdomain.TemplateAccount{
			ID:            node.Generate(),
			TemplateID:    templateID,
			AccountNumber: item.Number,
			AccountName:   item.Name,
			AccountType:   accountType,
			IsDefault:     item.Default,
			SortOrder:     (i + 1) * 10,
		}
		if parent := strings.TrimSpace(item.Parent); parent != "" {
			account.ParentAccountNumber = &parent
		}
		if err := tx.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "template_id"}, {Name: "account_number"}},
			DoNothing: true,
		}).Create(&account).Error; err != nil {
			return err
		}
	}
	return nil
}

// EnsureProviders upserts the shipped providers. ${VAR} placeholders are
// resolved through getenv; a provider without an app id stays inactive.
func EnsureProviders(ctx context.Context, db *gorm.DB, node *snowflake.Node, getenv func(string) string) (int, error) {
	raw, err := data.ReadFile(providersFile)
	if err != nil {
		return 0, err
	}
	var file providersFileContent
	if err := yaml.Unmarshal([]byte(os.Expand(string(raw), getenv)), &file); err != nil {
		return 0, err
	}

	repo := banksyncrepo.Provide()
	now := time.Now().UTC()
	for _, item := range file.Providers {
		config := datatypes.JSONMap{}
		for key, value := range item.Config {
			if value = strings.TrimSpace(value); value != "" {
				config[key] = value
			}
		}
		environment := strings.TrimSpace(item.Environment)
		if environment == "" {
			environment = "sandbox"
		}
		provider := banksyncdomain.Provider{
			ID:               node.Generate(),
			Name:             item.Name,
			DisplayName:      item.DisplayName,
			Environment:      environment,
			IsActive:         config["app_id"] != nil,
			ConfigData:       config,
			AuthorizationURL: optional(item.AuthorizationURL),
			TokenURL:         optional(item.TokenURL),
			APIBaseURL:       optional(item.APIBaseURL),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := repo.UpsertProvider(ctx, db, &provider); err != nil {
			return 0, fmt.Errorf("%s: %w", item.Name, err)
		}
	}
	return len(file.Providers), nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
