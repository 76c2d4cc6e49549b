package mocks

//go:generate mockgen -destination=./mock_exchange.go -package=mocks github.com/shigeo-nakamura/dex-router/internal/exchange Adapter,PnLReporter
