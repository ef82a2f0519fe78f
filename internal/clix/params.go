package clix

import (
	"fmt"

	"github.com/spf13/pflag"

	"skald/internal/models"
)

type PaginationParams struct {
	Limit  int
	Offset int
}

func ParsePagination(flags *pflag.FlagSet) (PaginationParams, error) {
	limit, _ := flags.GetInt("limit")
	offset, _ := flags.GetInt("offset")
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		return PaginationParams{}, fmt.Errorf("offset must not be negative: %d", offset)
	}
	return PaginationParams{Limit: limit, Offset: offset}, nil
}

// ParseTags reads the comma separated --tags flag.
func ParseTags(flags *pflag.FlagSet) (models.Tags, error) {
	tagsStr, err := flags.GetString("tags")
	if err != nil {
		return nil, err
	}
	return models.ParseTags(tagsStr), nil
}

// ParseTenant builds the tenant key from the --project and --credential flags.
func ParseTenant(flags *pflag.FlagSet) (models.TenantKey, error) {
	project, _ := flags.GetString("project")
	credential, _ := flags.GetString("credential")
	if project == "" || credential == "" {
		return models.TenantKey{}, fmt.Errorf("--project and --credential are required")
	}
	tenant := models.NewTenantKey(project, credential)
	if err := tenant.Validate(); err != nil {
		return models.TenantKey{}, err
	}
	return tenant, nil
}
