package sqlinline

const QSelectAnonCounters = `--sql 9a37e5d1-6f02-4c8b-ae94-17d3b8f5c206
select quick_used, premium_used
from anon_usage_counters
where session_token = $1::text;
`

const QUpsertAnonCounters = `--sql e14b72c9-0d85-43f6-9b21-a86f4e0d93c7
insert into anon_usage_counters (session_token, quick_used, premium_used, updated_at)
values ($1::text, $2::int, $3::int, now())
on conflict (session_token) do update set
    quick_used = excluded.quick_used,
    premium_used = excluded.premium_used,
    updated_at = now();
`
