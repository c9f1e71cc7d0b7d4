package provider

import (
	"net/http"
	"testing"

	"github.com/anoteng/regnskap/internal/banksync/domain"
	"github.com/anoteng/regnskap/internal/banksync/provider/enablebanking"
	"github.com/anoteng/regnskap/internal/config"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	domain.Client
	name string
}

func TestRegistryResolvesByName(t *testing.T) {
	registry := NewRegistry(nil)
	var gotHTTP *http.Client
	registry.Register(" Stub ", func(p domain.Provider, httpClient *http.Client) (domain.Client, error) {
		gotHTTP = httpClient
		return stubClient{name: p.Name}, nil
	})

	client, err := registry.Client(domain.Provider{Name: "STUB", IsActive: true})
	require.NoError(t, err)
	require.Equal(t, "STUB", client.(stubClient).name)
	require.Same(t, http.DefaultClient, gotHTTP)
	require.Equal(t, []string{"stub"}, registry.Names())
}

func TestRegistryRejectsInactiveAndUnknown(t *testing.T) {
	registry := NewRegistry(nil)

	_, err := registry.Client(domain.Provider{Name: "stub", IsActive: false})
	require.ErrorIs(t, err, domain.ErrProviderInactive)

	_, err = registry.Client(domain.Provider{Name: "nordigen", IsActive: true})
	require.ErrorIs(t, err, domain.ErrUnsupportedProvider)
	require.Contains(t, err.Error(), "nordigen")
}

func TestProvideRegistersBuiltIns(t *testing.T) {
	registry := Provide(config.Config{})
	require.Equal(t, []string{enablebanking.Name}, registry.Names())

	_, err := registry.Client(domain.Provider{Name: enablebanking.Name, IsActive: true})
	require.ErrorIs(t, err, domain.ErrProviderMisconfigured)
}
