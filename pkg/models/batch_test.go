package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/szsalyi/customization-poc-sub000/pkg/models"
)

func TestBatchModeIsValid(t *testing.T) {
	assert.True(t, models.BatchMode("").IsValid(), "empty mode defaults to upsert")
	assert.True(t, models.BatchModeUpsert.IsValid())
	assert.True(t, models.BatchModeUpdateOnly.IsValid())
	assert.False(t, models.BatchMode("replace").IsValid())
}

func TestDomainTypeIsValid(t *testing.T) {
	assert.True(t, models.DomainTypeAccount.IsValid())
	assert.True(t, models.DomainTypePartner.IsValid())
	assert.False(t, models.DomainType("").IsValid())
	assert.False(t, models.DomainType("tenant").IsValid())
}

func TestBatchResultAppend(t *testing.T) {
	var result models.BatchResult

	result.Append(models.OperationResult{DomainID: "a", Outcome: models.OutcomeCreated})
	result.Append(models.OperationResult{DomainID: "b", Outcome: models.OutcomeUpdated})
	result.Append(models.OperationResult{DomainID: "c", Outcome: models.OutcomeDeleted})
	result.Append(models.OperationResult{DomainID: "d", Outcome: models.OutcomeUnchanged})
	result.Append(models.OperationResult{DomainID: "e", Outcome: models.OutcomeUnchanged})

	assert.Len(t, result.Results, 5)
	assert.Equal(t, 1, result.Summary.Created)
	assert.Equal(t, 1, result.Summary.Updated)
	assert.Equal(t, 1, result.Summary.Deleted)
	assert.Equal(t, 2, result.Summary.Unchanged)
}
