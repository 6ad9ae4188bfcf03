package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"grid-exchange/src/amm"
	"grid-exchange/src/certify"
	"grid-exchange/src/metrics"
	"grid-exchange/src/models"
	"grid-exchange/src/settlement"
)

type PoolHandler struct {
	Pools        *amm.Registry
	Ledger       *settlement.Ledger
	Certificates *certify.StaticProvider
	Metrics      *metrics.Metrics
}

func NewPoolHandler(pools *amm.Registry, ledger *settlement.Ledger, certs *certify.StaticProvider, m *metrics.Metrics) *PoolHandler {
	return &PoolHandler{
		Pools:        pools,
		Ledger:       ledger,
		Certificates: certs,
		Metrics:      m,
	}
}

func (h *PoolHandler) CreatePool(c *fiber.Ctx) error {
	var req models.CreatePoolRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request: malformed JSON")
	}
	if req.Authority == "" {
		return badRequest(c, "authority is required")
	}

	view, err := h.Pools.CreatePool(
		req.Authority,
		amm.CurveType(req.CurveType),
		req.BondingBase,
		req.BondingSlope,
		req.InitialEnergy,
		req.FeeBps,
	)
	if err != nil {
		return fail(c, h.Metrics, "create_pool", err)
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

func (h *PoolHandler) ListPools(c *fiber.Ctx) error {
	return c.JSON(h.Pools.List())
}

func (h *PoolHandler) GetPool(c *fiber.Ctx) error {
	view, err := h.Pools.Snapshot(c.Params("id"))
	if err != nil {
		return fail(c, h.Metrics, "get_pool", err)
	}
	return c.JSON(view)
}

func (h *PoolHandler) QuoteBuy(c *fiber.Ctx) error {
	amount, err := c.ParamsInt("amount")
	if err != nil || amount <= 0 {
		return badRequest(c, "amount must be a positive integer")
	}
	quote, err := h.Pools.QuoteBuy(c.Params("id"), uint64(amount))
	if err != nil {
		return fail(c, h.Metrics, "quote_buy", err)
	}
	return c.JSON(quote)
}

func (h *PoolHandler) Swap(c *fiber.Ctx) error {
	var req models.SwapRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request: malformed JSON")
	}
	if req.Buyer == "" {
		return badRequest(c, "buyer is required")
	}

	quote, err := h.Pools.SwapBuyEnergy(req.Buyer, c.Params("id"), req.EnergyAmount, req.MaxCurrency)
	if err != nil {
		log.Warn().
			Err(err).
			Str("pool_id", c.Params("id")).
			Str("buyer", req.Buyer).
			Uint64("energy_amount", req.EnergyAmount).
			Uint64("max_currency", req.MaxCurrency).
			Msg("Swap rejected")
		return fail(c, h.Metrics, "swap_buy_energy", err)
	}

	if h.Metrics != nil {
		h.Metrics.PoolSwaps.Inc()
	}
	return c.JSON(quote)
}

func (h *PoolHandler) UpdatePoolParams(c *fiber.Ctx) error {
	var req models.UpdatePoolParamsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request: malformed JSON")
	}
	view, err := h.Pools.UpdateParams(req.Authority, c.Params("id"), req.BondingBase, req.BondingSlope, req.FeeBps)
	if err != nil {
		return fail(c, h.Metrics, "update_pool_params", err)
	}
	return c.JSON(view)
}

func (h *PoolHandler) Deposit(c *fiber.Ctx) error {
	var req models.DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request: malformed JSON")
	}
	if req.Account == "" {
		return badRequest(c, "account is required")
	}
	if req.Amount == 0 {
		return badRequest(c, "amount must be positive")
	}

	asset := settlement.Asset(req.Asset)
	if asset != settlement.AssetCurrency && asset != settlement.AssetEnergy {
		return badRequest(c, "asset must be CURRENCY or ENERGY")
	}
	if err := h.Ledger.Deposit(req.Account, asset, req.Amount); err != nil {
		return fail(c, h.Metrics, "deposit", err)
	}
	return h.balances(c, req.Account)
}

func (h *PoolHandler) GetBalances(c *fiber.Ctx) error {
	return h.balances(c, c.Params("account"))
}

func (h *PoolHandler) balances(c *fiber.Ctx, account string) error {
	bal, err := h.Ledger.BalancesOf(account)
	if err != nil {
		return fail(c, h.Metrics, "get_balances", err)
	}
	return c.JSON(models.BalancesResponse{
		Account:  account,
		Currency: bal.Currency,
		Energy:   bal.Energy,
	})
}

// PutCertificate registers or replaces a certificate record in the
// in-process registry. Stands in for the external certification
// program when the exchange runs standalone.
func (h *PoolHandler) PutCertificate(c *fiber.Ctx) error {
	var req models.CertificateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request: malformed JSON")
	}
	if req.ID == "" || req.Owner == "" {
		return badRequest(c, "id and owner are required")
	}
	status := certify.Status(req.Status)
	switch status {
	case certify.StatusValid, certify.StatusExpired, certify.StatusRevoked, certify.StatusPending:
	default:
		return badRequest(c, "status must be VALID, EXPIRED, REVOKED or PENDING")
	}

	h.Certificates.Put(certify.Certificate{
		ID:                  req.ID,
		Owner:               req.Owner,
		Status:              status,
		EnergyAmount:        req.EnergyAmount,
		ExpiresAt:           req.ExpiresAt,
		ValidatedForTrading: req.ValidatedForTrading,
	})
	return c.SendStatus(fiber.StatusNoContent)
}
