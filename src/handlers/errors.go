package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"grid-exchange/src/amm"
	"grid-exchange/src/certify"
	"grid-exchange/src/engine"
	"grid-exchange/src/metrics"
	"grid-exchange/src/models"
	"grid-exchange/src/settlement"
)

// statusFor maps engine errors onto HTTP codes: 409 for contention the
// caller should retry, 404 for unknown records, 403 for authority
// failures, 400 for malformed input, 422 for trades the rules reject,
// 503 when a required collaborator or feature is off.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrRecordBusy):
		return fiber.StatusConflict
	case errors.Is(err, engine.ErrOrderNotFound),
		errors.Is(err, amm.ErrPoolNotFound),
		errors.Is(err, certify.ErrCertificateNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, engine.ErrUnauthorizedAuthority):
		return fiber.StatusForbidden
	case errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrInvalidPrice),
		errors.Is(err, engine.ErrInvalidFee),
		errors.Is(err, engine.ErrBatchSizeExceeded),
		errors.Is(err, amm.ErrInvalidCurveType),
		errors.Is(err, amm.ErrInvalidCurveParams):
		return fiber.StatusBadRequest
	case errors.Is(err, engine.ErrBatchProcessingDisabled),
		errors.Is(err, certify.ErrCertificateUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, engine.ErrPriceMismatch),
		errors.Is(err, engine.ErrSelfTradeNotAllowed),
		errors.Is(err, engine.ErrInactiveOrder),
		errors.Is(err, engine.ErrOrderExpired),
		errors.Is(err, engine.ErrInvalidOrderState),
		errors.Is(err, engine.ErrMathOverflow),
		errors.Is(err, amm.ErrSlippageExceeded),
		errors.Is(err, amm.ErrInsufficientReserve),
		errors.Is(err, settlement.ErrInsufficientCurrency),
		errors.Is(err, settlement.ErrInsufficientEnergy),
		errors.Is(err, certify.ErrInvalidCertificate),
		errors.Is(err, certify.ErrCertificateExpired),
		errors.Is(err, certify.ErrNotValidatedForTrading),
		errors.Is(err, certify.ErrExceedsCertifiedAmount):
		return fiber.StatusUnprocessableEntity
	}
	return fiber.StatusInternalServerError
}

// fail renders the error response and counts contention rejections.
func fail(c *fiber.Ctx, m *metrics.Metrics, operation string, err error) error {
	if m != nil && errors.Is(err, engine.ErrRecordBusy) {
		m.RecordConflicts.WithLabelValues(operation).Inc()
	}
	return c.Status(statusFor(err)).JSON(models.ErrorResponse{Error: err.Error()})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: message})
}
