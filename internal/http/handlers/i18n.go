// Package handlers: human-readable texts.
//
// Responses keep stable machine codes in `message` and add a localized
// `detail` chosen from Accept-Language. English is the default; Russian is
// the language of the storefront the services were built for.
package handlers

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tbourn/go-promo-reco/internal/services"
)

// Message keys are the English texts.
const (
	msgNotFound           = "Promocode not found"
	msgNotEligible        = "Promocode is not available for this user"
	msgInactive           = "Promocode is not active"
	msgRequirementsNotMet = "Order does not meet the promocode requirements"
	msgDuplicateCode      = "A promocode with this code already exists"
	msgApplied            = "Promocode applied! Discount: %s"
	msgCreated            = "Promocode created"
	msgOrderProcessed     = "Recommendations updated from the order"
	msgRecCreated         = "Product added to recommendations"
	msgRecUpdated         = "Recommendation updated"
	msgRecDeleted         = "Recommendation deleted"
)

var supportedLanguages = []language.Tag{language.English, language.Russian}

var languageMatcher = language.NewMatcher(supportedLanguages)

func init() {
	ru := map[string]string{
		msgNotFound:           "Промокод не найден",
		msgNotEligible:        "Промокод не доступен для данного пользователя",
		msgInactive:           "Промокод не активен",
		msgRequirementsNotMet: "Заказ не соответствует требованиям промокода",
		msgDuplicateCode:      "Промокод с таким кодом уже существует",
		msgApplied:            "Промокод успешно применен! Скидка: %s руб.",
		msgCreated:            "Промокод успешно создан",
		msgOrderProcessed:     "Рекомендации обновлены на основе заказа",
		msgRecCreated:         "Товар добавлен в рекомендации",
		msgRecUpdated:         "Товар рекомендации обновлен",
		msgRecDeleted:         "Рекомендация удалена",
	}
	for key, text := range ru {
		_ = message.SetString(language.English, key, key)
		_ = message.SetString(language.Russian, key, text)
	}
}

// localeOf negotiates the response language from Accept-Language.
func localeOf(c *gin.Context) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(c.GetHeader("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, conf := languageMatcher.Match(tags...)
	if conf == language.No {
		return language.English
	}
	return supportedLanguages[idx]
}

// printer returns a message printer for the request and sets
// Content-Language accordingly.
func printer(c *gin.Context) *message.Printer {
	tag := localeOf(c)
	c.Header("Content-Language", tag.String())
	return message.NewPrinter(tag)
}

// reasonKey maps a rejection reason to its message key.
func reasonKey(r services.Reason) string {
	switch r {
	case services.ReasonNotFound:
		return msgNotFound
	case services.ReasonNotEligible:
		return msgNotEligible
	case services.ReasonInactive:
		return msgInactive
	case services.ReasonRequirementsNotMet:
		return msgRequirementsNotMet
	case services.ReasonDuplicateCode:
		return msgDuplicateCode
	}
	return string(r)
}
