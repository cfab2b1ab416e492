package captcha

import (
	"encoding/json"
	"fmt"
)

// InjectionScript returns JavaScript that places token into the challenge's response
// fields, fires the widget callback and submits the challenge form if there is one.
func InjectionScript(token string) string {
	quoted, _ := json.Marshal(token)
	return fmt.Sprintf(`(function(token) {
  var names = ["g-recaptcha-response", "cf-turnstile-response", "h-captcha-response"];
  names.forEach(function(name) {
    document.querySelectorAll('[name="' + name + '"], #' + name).forEach(function(el) {
      el.style.display = "block";
      el.value = token;
      el.innerHTML = token;
    });
  });
  var widget = document.querySelector("[data-callback]");
  if (widget) {
    var cb = widget.getAttribute("data-callback");
    if (cb && typeof window[cb] === "function") {
      try { window[cb](token); } catch (e) {}
    }
  }
  var form = document.querySelector("#challenge-form") ||
    (document.querySelector('[name="cf-turnstile-response"]') || {}).form ||
    (document.querySelector('[name="g-recaptcha-response"]') || {}).form;
  if (form) {
    form.submit();
  }
  return true;
})(%s)`, quoted)
}
