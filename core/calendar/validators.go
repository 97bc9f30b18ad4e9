package calendar

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

var (
	hhmmTag  = "hhmm"
	hhmmText = errInvalidTimeOfDay.Error()

	weekdayTag  = "weekday"
	weekdayText = "must be a day of the week"

	eventKindTag  = "eventkind"
	eventKindText = "type must be one of busy, preferred"

	frequencyTag  = "frequency"
	frequencyText = "frequency must be one of daily, weekly, monthly"

	endAfterStartTag  = "endafterstart"
	endAfterStartText = errEndBeforeStart.Error()

	requiredTag = "required"
)

// InitValidators registers the calendar validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(hhmmTag, hhmmValidation)
	core.RegisterCustomTranslation(validate, translator, hhmmTag, hhmmText)

	_ = validate.RegisterValidation(weekdayTag, weekdayValidation)
	core.RegisterCustomTranslation(validate, translator, weekdayTag, weekdayText)

	_ = validate.RegisterValidation(eventKindTag, eventKindValidation)
	core.RegisterCustomTranslation(validate, translator, eventKindTag, eventKindText)

	_ = validate.RegisterValidation(frequencyTag, frequencyValidation)
	core.RegisterCustomTranslation(validate, translator, frequencyTag, frequencyText)

	validate.RegisterStructValidation(eventStructValidation, NewEvent{})
	core.RegisterCustomTranslation(validate, translator, endAfterStartTag, endAfterStartText)
}

func hhmmValidation(fl validator.FieldLevel) bool {
	return IsValidTimeOfDay(fl.Field().String())
}

func weekdayValidation(fl validator.FieldLevel) bool {
	_, err := ParseWeekday(fl.Field().String())
	return err == nil
}

func eventKindValidation(fl validator.FieldLevel) bool {
	return Kind(fl.Field().String()).IsValid()
}

func frequencyValidation(fl validator.FieldLevel) bool {
	_, ok := frequencies[Frequency(fl.Field().String())]
	return ok
}

// eventStructValidation requires the fields of the branch selected by IsRecurring.
func eventStructValidation(sl validator.StructLevel) {
	ev, ok := sl.Current().Interface().(NewEvent)
	if !ok {
		return
	}

	if !ev.IsRecurring {
		if ev.StartTime == nil {
			sl.ReportError(ev.StartTime, "startTime", "StartTime", requiredTag, "")
		}
		if ev.EndTime == nil {
			sl.ReportError(ev.EndTime, "endTime", "EndTime", requiredTag, "")
		}
		if ev.StartTime != nil && ev.EndTime != nil && !ev.EndTime.After(*ev.StartTime) {
			sl.ReportError(ev.EndTime, "endTime", "EndTime", endAfterStartTag, "")
		}
		return
	}

	if ev.DayOfWeek == "" {
		sl.ReportError(ev.DayOfWeek, "dayOfWeek", "DayOfWeek", requiredTag, "")
	}
	if ev.RecurringStartTime == "" {
		sl.ReportError(ev.RecurringStartTime, "recurringStartTime", "RecurringStartTime", requiredTag, "")
	}
	if ev.RecurringEndTime == "" {
		sl.ReportError(ev.RecurringEndTime, "recurringEndTime", "RecurringEndTime", requiredTag, "")
	}
	start, sErr := ParseTimeOfDay(ev.RecurringStartTime)
	end, eErr := ParseTimeOfDay(ev.RecurringEndTime)
	if sErr == nil && eErr == nil && end <= start {
		sl.ReportError(ev.RecurringEndTime, "recurringEndTime", "RecurringEndTime", endAfterStartTag, "")
	}
}
