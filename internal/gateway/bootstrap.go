package gateway

import (
	"encoding/json"
	"time"

	"assent/internal/loader/consent"
)

// stateView is the consent state as exposed to page scripts and returned by
// the consent endpoints. Purposes is never null so `state.purposes[key]` is
// always safe to index.
type stateView struct {
	Resolved  bool            `json:"resolved"`
	Purposes  map[string]bool `json:"purposes"`
	Language  string          `json:"language,omitempty"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

func newStateView(state *consent.State, language string) stateView {
	view := stateView{Purposes: map[string]bool{}, Language: language}
	if state == nil {
		return view
	}
	view.Resolved = true
	view.Purposes = state.Purposes
	if !state.Timestamp.IsZero() {
		ts := state.Timestamp
		view.Timestamp = &ts
	}
	return view
}

// bootstrapScript renders the inline script the gateway injects as the first
// child of <head>. It exposes the control object page scripts integrate with
// and re-dispatches engine events as DOM CustomEvents. The embedded JSON is
// produced by json.Marshal, which escapes <, > and & and so cannot break out
// of the script element.
func bootstrapScript(state *consent.State, language string, ready bool) string {
	init, err := json.Marshal(struct {
		Ready bool      `json:"ready"`
		State stateView `json:"state"`
	}{Ready: ready, State: newStateView(state, language)})
	if err != nil {
		// stateView has no unmarshalable fields; only reachable by a bug.
		init = []byte(`{"ready":false,"state":{"resolved":false,"purposes":{}}}`)
	}
	return "(function(){" +
		"var init=" + string(init) + ";" +
		bootstrapBody +
		"})();"
}

// bootstrapBody is the static part of the injected script. It runs before any
// page script, so integrations can rely on window.assent existing even when
// they execute synchronously in <head>.
const bootstrapBody = `
var fire=function(name,detail){try{document.dispatchEvent(new CustomEvent("assent:"+name,{detail:detail}))}catch(e){}};
var call=function(path,body){
return fetch("/assent/consent"+path,{method:"POST",credentials:"same-origin",headers:{"Content-Type":"application/json"},body:JSON.stringify(body||{})})
.then(function(res){if(!res.ok){throw new Error("assent: consent request failed ("+res.status+")")}return res.json()})
.then(function(state){window.assent.state=state;fire(path==="/withdraw"?"withdrawn":"changed",state);return state});
};
window.assent={
ready:init.ready,
state:init.state,
hasConsent:function(purpose){var s=window.assent.state;return !!(s&&s.purposes&&s.purposes[purpose])},
acceptAll:function(){return call("/accept")},
rejectAll:function(){return call("/reject")},
savePreferences:function(purposes){return call("/save",{purposes:purposes||{}})},
withdraw:function(){return call("/withdraw")},
openSettings:function(){fire("settings",window.assent.state)}
};
if(document.readyState==="loading"){document.addEventListener("DOMContentLoaded",function(){fire("ready",window.assent.state)})}else{fire("ready",window.assent.state)}
`
