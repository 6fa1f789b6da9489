package reconcile

import (
	"github.com/username/tradefolio/src/models"
	"github.com/username/tradefolio/src/utils"
)

// RecordFromState maps a position episode onto the ledger row shape.
// Currency amounts are rounded to cents here, at the write boundary;
// everything upstream keeps full precision.
func RecordFromState(st *models.PositionState) models.Record {
	status := models.StatusOpen
	if st.IsClosed() {
		status = models.StatusClosed
	}
	return models.Record{
		Ticker:      st.Ticker,
		ContractKey: st.ContractKey,
		Account:     st.Account,
		Source:      st.Source,
		Status:      status,
		TradeType:   string(st.TradeType),
		Qty:         displayQty(st),
		FillPrice:   displayFillPrice(st),
		OpenDate:    st.OpenDate,
		OpenTime:    st.OpenTime,
		LastAddDate: st.LastAddDate,
		CloseDate:   st.CloseDate,
		CloseTime:   st.CloseTime,
		ClosePrice:  utils.RoundCents(st.AvgClosePrice() * st.Multiplier),
		RealizedPL:  utils.RoundCents(st.RealizedPL),
	}
}
