// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "api-key", "sk-1"))
	val, err := store.Get(ctx, "api-key")
	require.NoError(t, err)
	assert.Equal(t, "sk-1", val)

	require.NoError(t, store.Delete(ctx, "api-key"))
	_, err = store.Get(ctx, "api-key")
	assert.Error(t, err)
}

func TestEnvStore(t *testing.T) {
	store := NewEnvStore()
	ctx := context.Background()

	t.Setenv("TEST_SECRET_KEY", "v1")
	val, err := store.Get(ctx, "TEST_SECRET_KEY")
	require.NoError(t, err)
	assert.Equal(t, "v1", val)

	_, err = store.Get(ctx, "TEST_SECRET_KEY_MISSING")
	assert.Error(t, err)
}

func TestNewStore_DefaultProvider(t *testing.T) {
	store, err := NewStore(Config{Provider: ""})
	require.NoError(t, err)
	assert.NotNil(t, store)
}
