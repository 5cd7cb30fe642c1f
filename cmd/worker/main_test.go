package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kitchenledger/kitchenledger/internal/app"
	_ "github.com/kitchenledger/kitchenledger/internal/testing/guard"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	assert.True(t, app.InTestMode())
	assert.NotPanics(t, main)
}
