package capital

import "math"

// OrderSizeRequest describes what the caller wants to size: a target
// notional (budget * percentage) against one symbol's exchange filters.
type OrderSizeRequest struct {
	Symbol        string
	Price         float64
	Budget        float64 // available balance the order must fit inside
	TargetPercent float64 // fraction of Budget to target, e.g. 0.1
	StepSize      float64
	MinQty        float64
	MaxQty        float64
	MinNotional   float64
}

// OrderSizeResult is the sizer's decision: either a valid quantity or a
// structured reason it could not produce one.
type OrderSizeResult struct {
	Quantity float64
	Valid    bool
	Reason   string
}

// SizeOrder derives an exchange-valid order quantity from a target
// notional, grounded on DynamicOrderSizer.get_optimized_order_size:
// compute a target value, round down to the step size, clamp to
// [MinQty, MaxQty], bump up to satisfy MinNotional if needed, then shrink
// back to fit the budget — failing with a reason if no valid size remains.
func SizeOrder(req OrderSizeRequest) OrderSizeResult {
	if req.Price <= 0 {
		return OrderSizeResult{Reason: "invalid price"}
	}
	if req.StepSize <= 0 {
		return OrderSizeResult{Reason: "invalid step size"}
	}

	targetValue := req.Budget * req.TargetPercent
	if targetValue <= 0 {
		return OrderSizeResult{Reason: "non-positive target value"}
	}

	qty := floorToStep(targetValue/req.Price, req.StepSize)

	if req.MinQty > 0 && qty < req.MinQty {
		qty = req.MinQty
	}
	if req.MaxQty > 0 && qty > req.MaxQty {
		qty = req.MaxQty
	}

	if req.MinNotional > 0 && qty*req.Price < req.MinNotional {
		needed := ceilToStep(req.MinNotional/req.Price, req.StepSize)
		if req.MaxQty > 0 && needed > req.MaxQty {
			return OrderSizeResult{Reason: "min notional unreachable within max qty"}
		}
		qty = needed
	}

	if qty*req.Price > req.Budget {
		qty = floorToStep(req.Budget/req.Price, req.StepSize)
		if req.MinQty > 0 && qty < req.MinQty {
			return OrderSizeResult{Reason: "budget too small for min qty"}
		}
		if req.MinNotional > 0 && qty*req.Price < req.MinNotional {
			return OrderSizeResult{Reason: "budget too small for min notional"}
		}
	}

	if qty <= 0 {
		return OrderSizeResult{Reason: "resolved quantity non-positive"}
	}

	return OrderSizeResult{Quantity: qty, Valid: true}
}

func floorToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	return math.Floor(qty/step) * step
}

func ceilToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	return math.Ceil(qty/step) * step
}
