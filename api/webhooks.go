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
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/hisaab-io/hisaab"
	model2 "github.com/hisaab-io/hisaab/api/model"
	"github.com/hisaab-io/hisaab/internal/apierror"
)

// EasypaisaSignatureHeader carries the HMAC the gateway computes over the raw
// request body.
const EasypaisaSignatureHeader = "X-Easypaisa-Signature"

// JazzCashWebhook receives JazzCash settlement callbacks. Anything the
// pipeline rejects with a typed error maps to its HTTP status; unexpected
// failures come back as 5xx so the gateway retries delivery.
func (a Api) JazzCashWebhook(c *gin.Context) {
	var callback hisaab.JazzCashCallback
	if err := c.ShouldBindJSON(&callback); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.hisaab.ConfirmJazzCashCallback(c.Request.Context(), callback)
	if err != nil {
		logrus.Errorf("jazzcash callback for %s rejected: %v", callback.BillReference, err)
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// EasypaisaWebhook receives Easypaisa settlement callbacks. The signature is
// an HMAC over the raw body, so the body is read before JSON decoding.
func (a Api) EasypaisaWebhook(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	var callback hisaab.EasypaisaCallback
	if err := json.Unmarshal(rawBody, &callback); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	signature := c.GetHeader(EasypaisaSignatureHeader)
	resp, err := a.hisaab.ConfirmEasypaisaCallback(c.Request.Context(), rawBody, signature, callback)
	if err != nil {
		logrus.Errorf("easypaisa callback for %s rejected: %v", callback.OrderID, err)
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// BankSmsWebhook receives forwarded bank SMS messages from the phone relay.
// Every message is recorded whether or not it matches a reservation, so a
// miss still acknowledges with 200 and the outcome message.
func (a Api) BankSmsWebhook(c *gin.Context) {
	var sms model2.BankSms
	if err := c.ShouldBindJSON(&sms); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := sms.ValidateBankSms(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	processed, message, err := a.hisaab.ProcessIncomingSms(c.Request.Context(), sms.Sms, sms.Secret)
	if err != nil {
		logrus.Errorf("bank sms processing failed: %v", err)
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"processed": processed, "message": message})
}
