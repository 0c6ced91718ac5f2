package session

import (
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"
)

// reviewQueue schedules missed questions for another pass within the
// session. Each checked question gets an FSRS card: incorrect checks rate
// Again (due almost immediately), correct ones rate Good (pushed out).
type reviewQueue struct {
	params fsrs.Parameters
	cards  map[int]fsrs.Card
}

func newReviewQueue() *reviewQueue {
	return &reviewQueue{
		params: fsrs.DefaultParam(),
		cards:  make(map[int]fsrs.Card),
	}
}

func (r *reviewQueue) record(index int, correct bool, now time.Time) {
	card, ok := r.cards[index]
	if !ok {
		card = fsrs.Card{Due: now}
	}

	rating := fsrs.Again
	if correct {
		rating = fsrs.Good
	}

	scheduling := r.params.Repeat(card, now)
	if info, ok := scheduling[rating]; ok {
		r.cards[index] = info.Card
	}
}

// next returns the earliest-due question that has not scored yet.
func (r *reviewQueue) next(answered map[int]bool) (int, bool) {
	bestIndex := -1
	var bestDue time.Time
	for index, card := range r.cards {
		if answered[index] {
			continue
		}
		if bestIndex == -1 || card.Due.Before(bestDue) {
			bestIndex = index
			bestDue = card.Due
		}
	}
	if bestIndex == -1 {
		return 0, false
	}
	return bestIndex, true
}
