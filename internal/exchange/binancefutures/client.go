package binancefutures

import (
	"context"

	"github.com/adshao/go-binance/v2/futures"
)

// Service interfaces over the futures SDK so tests can replace the API.

// CreateOrderService places one order.
type CreateOrderService interface {
	Symbol(symbol string) CreateOrderService
	Side(side futures.SideType) CreateOrderService
	Type(orderType futures.OrderType) CreateOrderService
	Quantity(quantity string) CreateOrderService
	Price(price string) CreateOrderService
	TimeInForce(tif futures.TimeInForceType) CreateOrderService
	ReduceOnly(reduceOnly bool) CreateOrderService
	NewClientOrderID(id string) CreateOrderService
	NewOrderResponseType(t futures.NewOrderRespType) CreateOrderService
	Do(ctx context.Context) (*futures.CreateOrderResponse, error)
}

// GetOrderService queries one order.
type GetOrderService interface {
	Symbol(symbol string) GetOrderService
	OrderID(orderID int64) GetOrderService
	Do(ctx context.Context) (*futures.Order, error)
}

// ListAccountTradeService lists the trades of one order.
type ListAccountTradeService interface {
	Symbol(symbol string) ListAccountTradeService
	OrderID(orderID int64) ListAccountTradeService
	Do(ctx context.Context) ([]*futures.AccountTrade, error)
}

// CancelOrderService cancels one order.
type CancelOrderService interface {
	Symbol(symbol string) CancelOrderService
	OrderID(orderID int64) CancelOrderService
	Do(ctx context.Context) (*futures.CancelOrderResponse, error)
}

// ListOpenOrdersService lists open orders of every symbol.
type ListOpenOrdersService interface {
	Do(ctx context.Context) ([]*futures.Order, error)
}

// GetAccountService reads the futures account.
type GetAccountService interface {
	Do(ctx context.Context) (*futures.Account, error)
}

// GetPositionRiskService lists positions.
type GetPositionRiskService interface {
	Do(ctx context.Context) ([]*futures.PositionRisk, error)
}

// ExchangeInfoService reads the symbol filters.
type ExchangeInfoService interface {
	Do(ctx context.Context) (*futures.ExchangeInfo, error)
}

// ListPricesService reads the last price of one symbol.
type ListPricesService interface {
	Symbol(symbol string) ListPricesService
	Do(ctx context.Context) ([]*futures.SymbolPrice, error)
}

// StartUserStreamService creates a listen key.
type StartUserStreamService interface {
	Do(ctx context.Context) (string, error)
}

// KeepaliveUserStreamService extends a listen key.
type KeepaliveUserStreamService interface {
	ListenKey(listenKey string) KeepaliveUserStreamService
	Do(ctx context.Context) error
}

// FuturesClient abstracts the futures client for testing.
type FuturesClient interface {
	NewCreateOrderService() CreateOrderService
	NewGetOrderService() GetOrderService
	NewListAccountTradeService() ListAccountTradeService
	NewCancelOrderService() CancelOrderService
	NewListOpenOrdersService() ListOpenOrdersService
	NewGetAccountService() GetAccountService
	NewGetPositionRiskService() GetPositionRiskService
	NewExchangeInfoService() ExchangeInfoService
	NewListPricesService() ListPricesService
	NewStartUserStreamService() StartUserStreamService
	NewKeepaliveUserStreamService() KeepaliveUserStreamService
}

// realFuturesClient wraps the actual futures.Client.
type realFuturesClient struct {
	client *futures.Client
}

func (r *realFuturesClient) NewCreateOrderService() CreateOrderService {
	return &realCreateOrderService{service: r.client.NewCreateOrderService()}
}

func (r *realFuturesClient) NewGetOrderService() GetOrderService {
	return &realGetOrderService{service: r.client.NewGetOrderService()}
}

func (r *realFuturesClient) NewListAccountTradeService() ListAccountTradeService {
	return &realListAccountTradeService{service: r.client.NewListAccountTradeService()}
}

func (r *realFuturesClient) NewCancelOrderService() CancelOrderService {
	return &realCancelOrderService{service: r.client.NewCancelOrderService()}
}

func (r *realFuturesClient) NewListOpenOrdersService() ListOpenOrdersService {
	return &realListOpenOrdersService{service: r.client.NewListOpenOrdersService()}
}

func (r *realFuturesClient) NewGetAccountService() GetAccountService {
	return &realGetAccountService{service: r.client.NewGetAccountService()}
}

func (r *realFuturesClient) NewGetPositionRiskService() GetPositionRiskService {
	return &realGetPositionRiskService{service: r.client.NewGetPositionRiskService()}
}

func (r *realFuturesClient) NewExchangeInfoService() ExchangeInfoService {
	return &realExchangeInfoService{service: r.client.NewExchangeInfoService()}
}

func (r *realFuturesClient) NewListPricesService() ListPricesService {
	return &realListPricesService{service: r.client.NewListPricesService()}
}

func (r *realFuturesClient) NewStartUserStreamService() StartUserStreamService {
	return &realStartUserStreamService{service: r.client.NewStartUserStreamService()}
}

func (r *realFuturesClient) NewKeepaliveUserStreamService() KeepaliveUserStreamService {
	return &realKeepaliveUserStreamService{service: r.client.NewKeepaliveUserStreamService()}
}

type realCreateOrderService struct {
	service *futures.CreateOrderService
}

func (s *realCreateOrderService) Symbol(symbol string) CreateOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCreateOrderService) Side(side futures.SideType) CreateOrderService {
	s.service = s.service.Side(side)

	return s
}

func (s *realCreateOrderService) Type(orderType futures.OrderType) CreateOrderService {
	s.service = s.service.Type(orderType)

	return s
}

func (s *realCreateOrderService) Quantity(quantity string) CreateOrderService {
	s.service = s.service.Quantity(quantity)

	return s
}

func (s *realCreateOrderService) Price(price string) CreateOrderService {
	s.service = s.service.Price(price)

	return s
}

func (s *realCreateOrderService) TimeInForce(tif futures.TimeInForceType) CreateOrderService {
	s.service = s.service.TimeInForce(tif)

	return s
}

func (s *realCreateOrderService) ReduceOnly(reduceOnly bool) CreateOrderService {
	s.service = s.service.ReduceOnly(reduceOnly)

	return s
}

func (s *realCreateOrderService) NewClientOrderID(id string) CreateOrderService {
	s.service = s.service.NewClientOrderID(id)

	return s
}

func (s *realCreateOrderService) NewOrderResponseType(t futures.NewOrderRespType) CreateOrderService {
	s.service = s.service.NewOrderResponseType(t)

	return s
}

func (s *realCreateOrderService) Do(ctx context.Context) (*futures.CreateOrderResponse, error) {
	return s.service.Do(ctx)
}

type realGetOrderService struct {
	service *futures.GetOrderService
}

func (s *realGetOrderService) Symbol(symbol string) GetOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realGetOrderService) OrderID(orderID int64) GetOrderService {
	s.service = s.service.OrderID(orderID)

	return s
}

func (s *realGetOrderService) Do(ctx context.Context) (*futures.Order, error) {
	return s.service.Do(ctx)
}

type realListAccountTradeService struct {
	service *futures.ListAccountTradeService
}

func (s *realListAccountTradeService) Symbol(symbol string) ListAccountTradeService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realListAccountTradeService) OrderID(orderID int64) ListAccountTradeService {
	s.service = s.service.OrderID(orderID)

	return s
}

func (s *realListAccountTradeService) Do(ctx context.Context) ([]*futures.AccountTrade, error) {
	return s.service.Do(ctx)
}

type realCancelOrderService struct {
	service *futures.CancelOrderService
}

func (s *realCancelOrderService) Symbol(symbol string) CancelOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCancelOrderService) OrderID(orderID int64) CancelOrderService {
	s.service = s.service.OrderID(orderID)

	return s
}

func (s *realCancelOrderService) Do(ctx context.Context) (*futures.CancelOrderResponse, error) {
	return s.service.Do(ctx)
}

type realListOpenOrdersService struct {
	service *futures.ListOpenOrdersService
}

func (s *realListOpenOrdersService) Do(ctx context.Context) ([]*futures.Order, error) {
	return s.service.Do(ctx)
}

type realGetAccountService struct {
	service *futures.GetAccountService
}

func (s *realGetAccountService) Do(ctx context.Context) (*futures.Account, error) {
	return s.service.Do(ctx)
}

type realGetPositionRiskService struct {
	service *futures.GetPositionRiskService
}

func (s *realGetPositionRiskService) Do(ctx context.Context) ([]*futures.PositionRisk, error) {
	return s.service.Do(ctx)
}

type realExchangeInfoService struct {
	service *futures.ExchangeInfoService
}

func (s *realExchangeInfoService) Do(ctx context.Context) (*futures.ExchangeInfo, error) {
	return s.service.Do(ctx)
}

type realListPricesService struct {
	service *futures.ListPricesService
}

func (s *realListPricesService) Symbol(symbol string) ListPricesService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realListPricesService) Do(ctx context.Context) ([]*futures.SymbolPrice, error) {
	return s.service.Do(ctx)
}

type realStartUserStreamService struct {
	service *futures.StartUserStreamService
}

func (s *realStartUserStreamService) Do(ctx context.Context) (string, error) {
	return s.service.Do(ctx)
}

type realKeepaliveUserStreamService struct {
	service *futures.KeepaliveUserStreamService
}

func (s *realKeepaliveUserStreamService) ListenKey(listenKey string) KeepaliveUserStreamService {
	s.service = s.service.ListenKey(listenKey)

	return s
}

func (s *realKeepaliveUserStreamService) Do(ctx context.Context) error {
	return s.service.Do(ctx)
}
