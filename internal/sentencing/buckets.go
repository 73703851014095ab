package sentencing

// Simplified sentence-length buckets used by the published tables.
const (
	BucketUnder6Months = "Less than 6 months"
	Bucket6ToUnder12   = "6 months to less than 12 months"
	Bucket12OrMore     = "12 months or more"
)

// BucketOrder is the display order of the simplified buckets.
var BucketOrder = []string{BucketUnder6Months, Bucket6ToUnder12, Bucket12OrMore}

// Raw MoJ length categories grouped into each bucket. Anything not
// listed (longer determinate sentences, extended sentences, life) falls
// into the 12-months-or-more bucket.
var lessThan6Months = []string{
	"Up to and including 1 month",
	"More than 1 month and up to and including 2 months",
	"More than 2 months and up to and including 3 months",
	"More than 3 months and up to 6 months",
}

var sixToUnder12Months = []string{
	"6 months",
	"More than 6 months and up to and including 9 months",
	"More than 9 months and up to 12 months",
}

// LengthBucket maps a cleaned sentence-length label to its simplified
// bucket. The label must already have run through the replacement rules
// ("Over" is "More than" by this point).
func LengthBucket(sentenceLen string) string {
	if contains(lessThan6Months, sentenceLen) {
		return BucketUnder6Months
	}
	if contains(sixToUnder12Months, sentenceLen) {
		return Bucket6ToUnder12
	}
	return Bucket12OrMore
}
