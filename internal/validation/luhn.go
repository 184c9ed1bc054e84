// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"
	"time"
	"unicode"

	"github.com/mmeshcher/petcare-system/internal/model"
)

// IsValidOrderNumber проверяет номер заказа: цифры после префикса с контрольной цифрой по алгоритму Луна.
func IsValidOrderNumber(number string) bool {
	digits, ok := strings.CutPrefix(number, model.OrderNumberPrefix)
	if !ok {
		return false
	}
	return luhnValid(digits)
}

func luhnValid(number string) bool {
	if number == "" {
		return false
	}

	sum := 0
	double := false

	for i := len(number) - 1; i >= 0; i-- {
		ch := rune(number[i])
		if !unicode.IsDigit(ch) {
			return false
		}
		digit := int(ch - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return sum%10 == 0
}

// LuhnCheckDigit вычисляет контрольную цифру, которую нужно дописать к digits.
func LuhnCheckDigit(digits string) byte {
	sum := 0
	double := true

	for i := len(digits) - 1; i >= 0; i-- {
		digit := int(digits[i] - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return byte('0' + (10-sum%10)%10)
}

// ParseDate разбирает календарную дату записи в UTC.
func ParseDate(s string) (time.Time, bool) {
	d, err := time.ParseInLocation(model.DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// IsBlank сообщает, что строка пуста или состоит из пробелов.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
