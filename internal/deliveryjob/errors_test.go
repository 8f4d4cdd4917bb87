package deliveryjob_test

import (
	"errors"
	"testing"

	"github.com/hookfreight/hookfreight/internal/deliveryjob"
	"github.com/stretchr/testify/require"
)

func TestDeliveryErrorTiersUnwrapToCause(t *testing.T) {
	cause := errors.New("boom")

	pre := deliveryjob.NewPreDeliveryError(cause)
	require.Equal(t, "pre-delivery error: boom", pre.Error())
	require.ErrorIs(t, pre, cause)

	del := deliveryjob.NewDeliveryError(cause)
	require.Equal(t, "delivery error: boom", del.Error())
	require.ErrorIs(t, del, cause)

	post := deliveryjob.NewPostDeliveryError(cause)
	require.Equal(t, "post-delivery error: boom", post.Error())
	require.ErrorIs(t, post, cause)
}

func TestDeliveryErrorTiersAreDistinguishableViaErrorsAs(t *testing.T) {
	var err error = deliveryjob.NewPostDeliveryError(errors.New("disk full"))

	var pre *deliveryjob.PreDeliveryError
	require.False(t, errors.As(err, &pre))

	var post *deliveryjob.PostDeliveryError
	require.True(t, errors.As(err, &post))
}
