package fill

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNotional(t *testing.T) {
	t.Parallel()
	tr := Trade{Price: decimal.NewFromInt(20000), Quantity: decimal.NewFromFloat(0.5)}
	assert.True(t, tr.Notional().Equal(decimal.NewFromInt(10000)))
}

func TestCloses(t *testing.T) {
	t.Parallel()
	tr := Trade{}
	assert.False(t, tr.Closes())
	tr.ClosedQuantity = decimal.NewFromInt(1)
	assert.True(t, tr.Closes(), "a close at the entry price still closes")
	tr.PnL = decimal.NewFromInt(-5)
	assert.True(t, tr.Closes())
	tr.Fee = decimal.NewFromInt(1)
	assert.True(t, tr.NetPnL().Equal(decimal.NewFromInt(-6)))
}
