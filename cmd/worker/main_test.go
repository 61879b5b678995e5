package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/trustledger/internal/app"
	tltesting "github.com/odyssey-erp/trustledger/testing"
)

func TestMain(m *testing.M) {
	tltesting.TestMain(m)
}

func TestWorkerSkipsRuntimeInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	main()
}
