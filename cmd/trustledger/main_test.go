package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/trustledger/internal/app"
	_ "github.com/odyssey-erp/trustledger/internal/testing/guard"
)

func TestMainSkipsRuntimeInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	main()
}
