package grid

import (
	"github.com/LuizEdCard/binance-grid-bot-RL-sub001/internal/domain"
)

// detectFillsFromStream drains any buffered trade-stream events for the
// engine's symbol without blocking, used when the adapter advertises
// exchange.Capabilities.TradeStream — see the recorded open-question
// decision on fill detection.
func (e *Engine) detectFillsFromStream() []domain.Trade {
	var trades []domain.Trade
	for {
		select {
		case ev, ok := <-e.tradeStream:
			if !ok {
				return trades
			}
			if ev.Symbol != e.symbol {
				continue
			}
			trades = append(trades, domain.Trade{
				Timestamp: ev.FilledAt,
				Symbol:    ev.Symbol,
				Side:      ev.Side,
				Price:     ev.Price,
				Quantity:  ev.Quantity,
				Source:    domain.TradeSourceGrid,
			})
		default:
			return trades
		}
	}
}

// detectFillsFromSnapshot diffs the previous live-order set against the
// current one: any order present before and absent now, with no
// corresponding cancel issued this cycle, is treated as filled.
func detectFillsFromSnapshot(previous map[string]domain.OpenOrder, current []domain.OpenOrder, canceledIDs map[string]bool) []domain.Trade {
	currentIDs := make(map[string]bool, len(current))
	for _, o := range current {
		currentIDs[o.OrderID] = true
	}

	var trades []domain.Trade
	for id, o := range previous {
		if currentIDs[id] || canceledIDs[id] {
			continue
		}
		trades = append(trades, domain.Trade{
			Symbol:   o.Symbol,
			Side:     o.Side,
			Price:    o.Price,
			Quantity: o.Quantity,
			Source:   domain.TradeSourceGrid,
		})
	}
	return trades
}

// applyFill updates position state with a weighted-average entry on an
// add, or a smaller size on a reduce, matching the direction the trade's
// side implies relative to the current position. It does not compute
// realized PnL.
func applyFill(pos domain.Position, trade domain.Trade) domain.Position {
	tradeSide := positionSideFor(trade.Side)

	if pos.IsFlat() {
		return domain.Position{Side: tradeSide, Size: trade.Quantity, EntryPrice: trade.Price}
	}

	if pos.Side == tradeSide {
		totalQty := pos.Size + trade.Quantity
		pos.EntryPrice = (pos.EntryPrice*pos.Size + trade.Price*trade.Quantity) / totalQty
		pos.Size = totalQty
		return pos
	}

	// Opposite side: reduce, keeping the entry price of the remainder.
	if trade.Quantity >= pos.Size {
		remainder := trade.Quantity - pos.Size
		pos.Size = 0
		pos.Side = domain.PositionFlat
		if remainder > 0 {
			return domain.Position{Side: tradeSide, Size: remainder, EntryPrice: trade.Price}
		}
		return pos
	}

	pos.Size -= trade.Quantity
	return pos
}

func positionSideFor(side domain.OrderSide) domain.PositionSide {
	if side == domain.SideBuy {
		return domain.PositionLong
	}
	return domain.PositionShort
}

// mirrorLevel returns the opposite-side level to schedule after a fill: one
// step closer to center than the filled level, on the opposite side (e.g. a
// fill at the innermost buy level mirrors to a sell right at center).
func mirrorLevel(filled domain.Level, ladder domain.Ladder, tickSize float64) domain.Level {
	mirrorSide := domain.SideSell
	if filled.Side == domain.SideSell {
		mirrorSide = domain.SideBuy
	}

	magnitude := filled.Index
	if magnitude < 0 {
		magnitude = -magnitude
	}
	magnitude--
	if magnitude < 0 {
		magnitude = 0
	}

	mirrorIndex := magnitude
	if mirrorSide == domain.SideBuy {
		mirrorIndex = -magnitude
	}

	price := roundToTick(ladder.CenterPrice*(1+float64(mirrorIndex)*ladder.SpacingFraction), tickSize)
	return domain.Level{Price: price, Side: mirrorSide, IntendedQty: filled.IntendedQty, Index: mirrorIndex}
}
