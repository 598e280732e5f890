package types

type Side string

const (
	SideTypeBuy  Side = "BUY"
	SideTypeSell Side = "SELL"
)

func (s Side) Valid() bool {
	return s == SideTypeBuy || s == SideTypeSell
}
