package grants

const (
	baseFundingRate = 0.50
	maxFundingRate  = 0.75
)

// Program streams that qualify for the enhanced rate.
var enhancedStreams = map[string]bool{
	"digital_productivity": true,
	"experienced_workers":  true,
}

// Priority SME size bands (6 to 99 employees).
var prioritySizeBands = map[string]bool{
	"6-24":  true,
	"25-99": true,
}

// EstimateFundingRate returns the reimbursement rate for a project given
// the applicant's profile. Base rate is 50%; digital transformation and
// experienced-worker streams are topped up to 75%, and priority SMEs get
// a 10-point bump, capped at the program maximum.
func EstimateFundingRate(org *Organization, stream string) float64 {
	rate := baseFundingRate
	if enhancedStreams[stream] {
		rate = maxFundingRate
	}
	if org != nil && prioritySizeBands[org.SizeBand] {
		rate += 0.10
	}
	if rate > maxFundingRate {
		rate = maxFundingRate
	}
	return rate
}
