package generic

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PayOut finishes a claim or sale inside a store transaction: it converts
// usd through the treasury, enforces the caller's minimum, persists pos and
// the payout record, and transfers last so a failed transfer rolls back
// every write of the transaction.
//
// The transfer cannot be undone if the commit itself then fails; callers
// pass the receipt and error to LogUncommitted so the transfer can be
// reconciled by payout ID.
func PayOut(ctx context.Context, tx Store, treasury Treasury, pos *Position, req PayoutRequest,
	kind PayoutKind, usd Amount, from, to int, at time.Time) (*Receipt, error) {

	tokens, err := treasury.USDAmountToToken(ctx, usd, req.Token)
	if err != nil {
		return nil, err
	}
	if !req.MinOut.IsZero() && tokens.LessThan(req.MinOut) {
		return nil, &SlippageError{Token: req.Token, MinOut: req.MinOut, Got: tokens}
	}

	if err := tx.SavePosition(ctx, *pos); err != nil {
		return nil, err
	}

	payout := Payout{
		ID:          uuid.NewString(),
		Strategy:    pos.Strategy,
		Key:         pos.Key,
		Recipient:   req.Caller,
		Kind:        kind,
		USD:         usd,
		Token:       req.Token,
		TokenAmount: tokens,
		FromPeriod:  from,
		ToPeriod:    to,
		At:          at,
	}
	if err := tx.AppendPayout(ctx, payout); err != nil {
		return nil, err
	}

	if tokens.IsPositive() {
		if err := treasury.Payout(ctx, req.Caller, req.Token, tokens); err != nil {
			return nil, err
		}
	}

	return &Receipt{
		PayoutID:    payout.ID,
		Strategy:    pos.Strategy,
		Key:         pos.Key,
		Kind:        kind,
		Recipient:   req.Caller,
		USD:         usd,
		Token:       req.Token,
		TokenAmount: tokens,
		FromPeriod:  from,
		ToPeriod:    to,
		Position:    *pos,
		At:          at,
	}, nil
}

// LogUncommitted reports a receipt whose transfer went out before its
// transaction failed to commit. It does nothing for any other outcome.
func LogUncommitted(log zerolog.Logger, receipt *Receipt, err error) {
	if receipt == nil || !errors.Is(err, ErrCommitFailed) {
		return
	}
	log.Error().Err(err).
		Str("payout_id", receipt.PayoutID).
		Str("position", receipt.Key.String()).
		Str("kind", string(receipt.Kind)).
		Str("recipient", receipt.Recipient.Hex()).
		Str("token", string(receipt.Token)).
		Str("token_amount", receipt.TokenAmount.String()).
		Msg("payout transferred but not committed")
}
