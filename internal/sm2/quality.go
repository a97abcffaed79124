package sm2

// Quality is the learner's 0-5 self-assessment of recall for one review.
type Quality int

const (
	Blackout  Quality = 0 // complete failure to recall
	Incorrect Quality = 1 // wrong, but the answer was recognised
	Familiar  Quality = 2 // wrong, but the answer felt close
	Hard      Quality = 3 // recalled with serious difficulty
	Good      Quality = 4 // recalled after some hesitation
	Perfect   Quality = 5 // instant recall
)

// PassingQuality is the lowest quality that counts as a successful review.
const PassingQuality = Hard

// IsValid reports whether q lies in [0, 5].
func (q Quality) IsValid() bool {
	return q >= Blackout && q <= Perfect
}

// Passed reports whether q counts as a successful recall.
func (q Quality) Passed() bool {
	return q >= PassingQuality
}

func (q Quality) String() string {
	switch q {
	case Blackout:
		return "blackout"
	case Incorrect:
		return "incorrect"
	case Familiar:
		return "familiar"
	case Hard:
		return "hard"
	case Good:
		return "good"
	case Perfect:
		return "perfect"
	default:
		return "invalid"
	}
}
