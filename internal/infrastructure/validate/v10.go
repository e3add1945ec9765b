package validate

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
)

// PlaygroundV10 Validator implementation using go-playground
type PlaygroundV10 struct {
	core  *validator.Validate
	trans ut.Translator
}

var _ Validator = &PlaygroundV10{}

// NewValidator create a new Validator whose messages are in locale,
// unknown locales fall back to en
func NewValidator(locale string) *PlaygroundV10 {
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale, zh.New())
	trans, found := uni.GetTranslator(locale)
	if !found {
		locale = "en"
	}

	validate := validator.New()
	switch locale {
	case "zh":
		zh_translations.RegisterDefaultTranslations(validate, trans)
	default:
		en_translations.RegisterDefaultTranslations(validate, trans)
	}
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, key := range []string{"param", "json", "query"} {
			name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return ""
	})
	return &PlaygroundV10{
		core:  validate,
		trans: trans,
	}
}

// Struct validate struct
func (v PlaygroundV10) Struct(s interface{}) []*FieldError {
	err := v.core.Struct(s)
	if err == nil {
		return nil
	}
	return v.translate(err, "")
}

// Var validate value named name against tag
func (v PlaygroundV10) Var(name string, value interface{}, tag string) []*FieldError {
	err := v.core.Var(value, tag)
	if err == nil {
		return nil
	}
	return v.translate(err, name)
}

func (v PlaygroundV10) translate(err error, name string) []*FieldError {
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return []*FieldError{NewFieldError(name, err.Error())}
	}

	var result []*FieldError
	for _, item := range ve {
		domain, reason := item.Field(), strings.TrimSpace(item.Translate(v.trans))
		if name != "" {
			// Var has no field, so the translation lacks a subject
			domain, reason = name, name+" "+reason
		}
		result = append(result, NewFieldError(domain, reason))
	}
	return result
}
