package server

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrijs2005/cloudwarden/internal/logging"
	"github.com/dmitrijs2005/cloudwarden/internal/server/config"
	"github.com/dmitrijs2005/cloudwarden/internal/server/models"
)

func TestRegistry_CoversEveryProvider(t *testing.T) {
	c := &config.Config{}
	c.LoadDefaults()

	reg := Registry(c, logging.Nop())

	assert.Len(t, reg, 2)
	assert.Equal(t, models.ProviderAWS, reg[models.ProviderAWS].Provider())
	assert.Equal(t, models.ProviderAzure, reg[models.ProviderAzure].Provider())
}

func TestComponentsClose_ToleratesPartialState(t *testing.T) {
	assert.NotPanics(t, func() { (&Components{}).Close() })
}
