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

package middleware

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/jwt"
)

const identityKey = "operator"

// loginRequest 登录请求体；口令正确即换发 JWT
type loginRequest struct {
	Secret string `json:"secret"`
}

// NewJWTAuth 创建 JWT 认证中间件。控制类路由（启停、调周期、手动恢复）
// 要求携带有效 token；只读路由不设防。
func NewJWTAuth(key []byte, adminSecret string, timeout, maxRefresh time.Duration) (*jwt.HertzJWTMiddleware, error) {
	return jwt.New(&jwt.HertzJWTMiddleware{
		Realm:       "agentd",
		Key:         key,
		Timeout:     timeout,
		MaxRefresh:  maxRefresh,
		IdentityKey: identityKey,
		Authenticator: func(ctx context.Context, c *app.RequestContext) (interface{}, error) {
			var req loginRequest
			if err := c.BindAndValidate(&req); err != nil {
				return nil, jwt.ErrMissingLoginValues
			}
			if adminSecret == "" || req.Secret != adminSecret {
				return nil, jwt.ErrFailedAuthentication
			}
			return identityKey, nil
		},
		PayloadFunc: func(data interface{}) jwt.MapClaims {
			return jwt.MapClaims{identityKey: data}
		},
	})
}
