package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"postoffice/internal/types"
)

func TestIdempotencyRepository_InsertIfAbsent(t *testing.T) {
	tests := []struct {
		name string
		tag  string
		want bool
	}{
		{name: "first submission", tag: "INSERT 0 1", want: true},
		{name: "replayed token", tag: "INSERT 0 0", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := new(mockDBTX)
			repo := NewIdempotencyRepository(db)

			db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
				Return(pgconn.NewCommandTag(tt.tag), nil)

			got, err := repo.InsertIfAbsent(context.Background(), types.IdempotencyRecord{Token: "tok", NotificationID: "n1"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIdempotencyRepository_InsertIfAbsent_Error(t *testing.T) {
	db := new(mockDBTX)
	repo := NewIdempotencyRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("timeout"))

	_, err := repo.InsertIfAbsent(context.Background(), types.IdempotencyRecord{Token: "tok"})
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeInternalDB))
}

func TestIdempotencyRepository_DeleteBefore(t *testing.T) {
	db := new(mockDBTX)
	repo := NewIdempotencyRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{testTime}).
		Return(pgconn.NewCommandTag("DELETE 5"), nil)

	n, err := repo.DeleteBefore(context.Background(), testTime)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}
