package checkout

// Kind classifies why a confirm attempt was rejected. Every kind is
// user-facing; none is ever swallowed.
type Kind string

const (
	ItemInactive           Kind = "item_inactive"
	RequiresVoucherMissing Kind = "requires_voucher"
	PriceChanged           Kind = "price_changed"
	VoucherExpired         Kind = "voucher_expired"
	VoucherAlreadyRedeemed Kind = "voucher_redeemed"
	VoucherDuplicateInCart Kind = "voucher_duplicate"
	QuotaUnavailable       Kind = "quota_unavailable"
	PresaleClosed          Kind = "presale_closed"
	InvalidSession         Kind = "invalid_session"
	StorageFailure         Kind = "storage_failure"
)

type Failure struct {
	Kind       Kind   `json:"kind"`
	PositionID string `json:"positionId,omitempty"`
	Message    string `json:"message"`
}

func fail(kind Kind, positionID string, message string) Failure {
	return Failure{Kind: kind, PositionID: positionID, Message: message}
}
