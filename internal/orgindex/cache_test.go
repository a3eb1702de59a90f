// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package orgindex

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/personalesag/internal/fault"
)

type MockSource struct {
	mock.Mock
}

func (m *MockSource) FetchTree(ctx context.Context) ([]*Node, error) {
	args := m.Called(ctx)
	tree, _ := args.Get(0).([]*Node)
	return tree, args.Error(1)
}

func (m *MockSource) FetchDepartments(ctx context.Context) ([]Department, error) {
	args := m.Called(ctx)
	deps, _ := args.Get(0).([]Department)
	return deps, args.Error(1)
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func TestCacheEnsureBuildsOnce(t *testing.T) {
	src := &MockSource{}
	src.On("FetchTree", mock.Anything).Return(testForest(), nil).Once()
	src.On("FetchDepartments", mock.Anything).Return(testDepartments(), nil).Once()

	clock := newClock()
	c := NewCache(src, WithClock(clock.Now))

	snap, err := c.Ensure(t.Context())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.Index.Len())
	assert.Equal(t, clock.Now(), snap.BuiltAt)

	clock.Advance(11 * time.Hour)
	again, err := c.Ensure(t.Context())
	require.NoError(t, err)
	assert.Same(t, snap, again)

	src.AssertExpectations(t)
}

func TestCacheEnsureRebuildsWhenStale(t *testing.T) {
	src := &MockSource{}
	src.On("FetchTree", mock.Anything).Return(testForest(), nil).Twice()
	src.On("FetchDepartments", mock.Anything).Return(testDepartments(), nil).Twice()

	clock := newClock()
	c := NewCache(src, WithClock(clock.Now))

	first, err := c.Ensure(t.Context())
	require.NoError(t, err)

	clock.Advance(12 * time.Hour)
	second, err := c.Ensure(t.Context())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Same(t, second, c.Current())

	src.AssertExpectations(t)
}

func TestCacheEnsureUnavailableWithoutPrevious(t *testing.T) {
	src := &MockSource{}
	src.On("FetchTree", mock.Anything).Return(nil, errors.New("connection refused")).Once()

	var readiness []bool
	c := NewCache(src, WithClock(newClock().Now), WithReadyFunc(func(ready bool) {
		readiness = append(readiness, ready)
	}))

	snap, err := c.Ensure(t.Context())
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, fault.IsUnavailable(err))
	assert.Equal(t, []bool{false}, readiness)

	src.AssertExpectations(t)
}

func TestCacheEnsureAbsentTreeIsUnavailable(t *testing.T) {
	src := &MockSource{}
	src.On("FetchTree", mock.Anything).Return(nil, nil).Once()

	c := NewCache(src)
	_, err := c.Ensure(t.Context())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCacheEnsureAbsentDepartmentsIsUnavailable(t *testing.T) {
	src := &MockSource{}
	src.On("FetchTree", mock.Anything).Return(testForest(), nil).Once()
	src.On("FetchDepartments", mock.Anything).Return(nil, nil).Once()

	c := NewCache(src)
	_, err := c.Ensure(t.Context())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCacheEnsureKeepsPreviousOnFailure(t *testing.T) {
	src := &MockSource{}
	src.On("FetchTree", mock.Anything).Return(testForest(), nil).Once()
	src.On("FetchDepartments", mock.Anything).Return(testDepartments(), nil).Once()
	src.On("FetchTree", mock.Anything).Return(nil, errors.New("503")).Once()

	clock := newClock()
	c := NewCache(src, WithClock(clock.Now))

	first, err := c.Ensure(t.Context())
	require.NoError(t, err)

	clock.Advance(13 * time.Hour)
	second, err := c.Ensure(t.Context())
	require.NoError(t, err)
	assert.Same(t, first, second)

	src.AssertExpectations(t)
}

func TestCacheEnsureWaitsBeforeRetry(t *testing.T) {
	src := &MockSource{}
	src.On("FetchTree", mock.Anything).Return(nil, errors.New("timeout")).Once()

	clock := newClock()
	c := NewCache(src, WithClock(clock.Now), WithRetryInterval(time.Minute))

	_, err := c.Ensure(t.Context())
	require.Error(t, err)

	clock.Advance(30 * time.Second)
	_, err = c.Ensure(t.Context())
	assert.ErrorIs(t, err, ErrUnavailable)
	src.AssertNumberOfCalls(t, "FetchTree", 1)

	src.On("FetchTree", mock.Anything).Return(testForest(), nil).Once()
	src.On("FetchDepartments", mock.Anything).Return(testDepartments(), nil).Once()
	clock.Advance(31 * time.Second)
	snap, err := c.Ensure(t.Context())
	require.NoError(t, err)
	assert.NotNil(t, snap)
	src.AssertNumberOfCalls(t, "FetchTree", 2)
}

func TestCacheEnsureMalformedTree(t *testing.T) {
	a := &Node{Code: "A", Name: "A", Level: 3}
	a.Children = []*Node{a}

	src := &MockSource{}
	src.On("FetchTree", mock.Anything).Return([]*Node{a}, nil).Once()
	src.On("FetchDepartments", mock.Anything).Return(testDepartments(), nil).Once()

	c := NewCache(src)
	_, err := c.Ensure(t.Context())
	assert.ErrorIs(t, err, ErrCycle)
	assert.ErrorIs(t, err, ErrUnavailable)
}
