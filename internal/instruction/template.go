package instruction

const instructionTemplate = `
{{- if eq .Kind "follower-check" -}}
TASK: Report the public follower count of a GitHub profile.

STEPS:
1. Open the browser and go to {{.GitHubURL}}. No login is needed.
2. Read the number of followers shown on the profile.
3. This task is read-only. Do not click follow, star, or any other button that changes anything.

FINAL SUMMARY (mandatory, it is the only output that is read):
End with exactly one line in this format:
Followers: <number>
{{- else -}}
TASK: {{if eq .Kind "reply"}}Reply to simple birthday wishes in my LinkedIn messages.{{else}}Wish my LinkedIn connections whose birthday is today.{{end}}

LOGIN:
{{- if .LoggedIn}}
A saved session is active. Do NOT log in again. Go directly to https://www.linkedin.com/feed/.
If you are unexpectedly shown a login page, stop immediately and end with the line: {{.LoginMarker}}
{{- else}}
Open the browser and wait for the user to select a browser profile if needed.
Go to https://www.linkedin.com/login and log in with username {{.Username}} and password {{.Password}}.
Handle multi-factor authentication if prompted; wait for the user to complete it.
Never repeat the username or password in any output.
{{- end}}

MODE:
{{- if .DryRun}}
DRY RUN IS ACTIVE. You must NOT send, post, react, or change anything.
Wherever you would send a message, instead output exactly one line:
[DRY RUN] Would send to <name>: "<message>"
{{- else}}
LIVE MODE. Messages you send are real and cannot be undone.
{{- end}}

CONTACT RULES (names are case-insensitive; apply before anything else):
1. Blacklist. Never message these contacts; skip them: {{list .Filter.Blacklist}}
2. Cooldown. Already contacted in the last {{.Filter.CooldownDays}} days; skip them: {{list .Filter.Cooldown}}
{{- if .Filter.Whitelist}}
3. Whitelist. Only these contacts may be messaged; skip everyone else: {{list .Filter.Whitelist}}
{{- else}}
3. Whitelist. None configured; any contact not skipped by rules 1 and 2 is allowed.
{{- end}}
Rules 1 and 2 always win over rule 3.
{{if eq .Kind "reply"}}
STEPS:
1. Open the messaging page.
2. Examine each unread message thread one by one.
3. Classify the thread with the CLASSIFICATION rules below.
4. For REPLY, send one short reply chosen at random from: {{quote .ReplyVariants}}
5. For SKIP, do not respond. Open the thread so it is marked as read, then move on.

CLASSIFICATION (evaluate in order; the first matching rule decides):
1. The sender is skipped by the CONTACT RULES: SKIP.
2. I already replied in the thread after the wish: SKIP.
3. The message contains anything besides a birthday greeting (a question, a request, a link, an attachment, job or sales content, or more than two short sentences): SKIP.
4. The message is only a birthday greeting, such as "Happy birthday!", "HBD!", "Many happy returns" or "Hope you have a great day!": REPLY.
5. Anything else: SKIP. When in doubt, skip. Missing a wish is better than replying to a message that is not one.

LIMIT:
Process at most {{.MaxItems}} threads in this run. Stop after {{.MaxItems}} threads or as soon as there are no more unread threads.

FINAL SUMMARY (mandatory, it is the only output that is read):
End with one line per processed thread:
{{- if .DryRun}}
- for a reply you would send: [DRY RUN] Would send to <name>: "<message>"
{{- else}}
- for a reply you sent: Replied to <name>: "<message>"
{{- end}}
- for a thread you did not answer: Skipped <name>: <reason>
{{- else}}
STEPS:
1. Open the notifications page and the "Celebrate" birthdays section of My Network.
2. Go through the connections celebrating a birthday one by one.
3. Classify each connection with the CLASSIFICATION rules below.
4. For WISH, open a message to the connection and send one wish chosen at random from: {{quote .WishVariants}}
   Replace {first_name} with the connection's first name.
5. For SKIP, do nothing and move on.

CLASSIFICATION (evaluate in order; the first matching rule decides):
1. The connection is skipped by the CONTACT RULES: SKIP.
2. The page does not clearly say the birthday is today: SKIP.
3. I already wished or messaged the connection today: SKIP.
4. The birthday is clearly today: WISH.
5. Anything else: SKIP. When in doubt, skip.

LIMIT:
Wish at most {{.MaxItems}} connections in this run. Stop after {{.MaxItems}} connections or as soon as there are no more birthdays today.

FINAL SUMMARY (mandatory, it is the only output that is read):
End with one line per processed connection:
{{- if .DryRun}}
- for a wish you would send: [DRY RUN] Would send to <name>: "<message>"
{{- else}}
- for a wish you sent: Wished <name>: "<message>"
{{- end}}
- for a connection you did not wish: Skipped <name>: <reason>
{{- end}}
Do not use the words "replied to", "wished", "would send to" or "skipped" anywhere else in the summary.
{{- end}}
`
