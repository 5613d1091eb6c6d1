package prompt

import (
	"github.com/manifoldco/promptui"
)

// InputWithValidation prompts for text until validate accepts it.
func InputWithValidation(label string, validate func(string) error) (string, error) {
	if !interactive() {
		return "", ErrNotInteractive
	}

	p := promptui.Prompt{
		Label:    label,
		Validate: validate,
	}
	result, err := p.Run()
	return result, wrapError(err)
}

// ValueOrPrompt returns value when non-empty and prompts otherwise.
func ValueOrPrompt(value, label string, validate func(string) error) (string, error) {
	if value != "" {
		if validate != nil {
			if err := validate(value); err != nil {
				return "", err
			}
		}
		return value, nil
	}
	return InputWithValidation(label, validate)
}
