/*
Copyright 2025 Hisaab Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/hisaab-io/hisaab"
	"github.com/hisaab-io/hisaab/api/middleware"
	"github.com/hisaab-io/hisaab/config"
)

type Api struct {
	hisaab *hisaab.Hisaab
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/wallets", a.CreateWallet)
	router.GET("/wallets/:id", a.GetWallet)
	router.GET("/wallets/:id/transactions", a.GetWalletTransactions)
	router.POST("/wallets/:id/credits", a.CreditWallet)
	router.POST("/wallets/:id/debits", a.DebitWallet)

	router.POST("/top-ups", a.InitiateTopUp)
	router.POST("/top-ups/locks", a.InitiateTopUpLock)
	router.GET("/top-ups/:id", a.GetTopUp)
	router.GET("/top-ups", a.GetTopUps)
	router.POST("/top-ups/:id/cancel", a.CancelTopUp)
	router.POST("/top-ups/:id/hold", a.HoldTopUp)
	router.POST("/top-ups/:id/review", a.ReviewTopUp)

	return a.router
}

func NewAPI(h *hisaab.Hisaab) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	a := &Api{hisaab: h, router: r}

	// Gateway callbacks authenticate with their own signatures, so they
	// sit outside the API key middleware.
	r.POST("/webhooks/jazzcash", a.JazzCashWebhook)
	r.POST("/webhooks/easypaisa", a.EasypaisaWebhook)
	r.POST("/webhooks/bank-sms", a.BankSmsWebhook)

	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	return a
}
