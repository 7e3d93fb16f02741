package sqlinline

const QUpsertGoogleProfile = `--sql 3f1c9a4e-8d72-4b1a-9c55-6e0f2a7d81b4
insert into profiles (id, google_sub, email, locale, tier, subscription_status,
                      quick_used, premium_used, monthly_used, monthly_reset_at,
                      credit_balance, created_at, updated_at)
values (gen_random_uuid(), $1::text, $2::text, $3::text, 'free', '',
        0, 0, 0, now() + interval '1 month', 0, now(), now())
on conflict (google_sub) do update set
    email = excluded.email,
    locale = excluded.locale,
    updated_at = now()
returning id, email, locale, tier, subscription_status,
          quick_used, premium_used, monthly_used, monthly_reset_at,
          credit_balance, coalesce(payment_customer_id, ''), created_at, updated_at;
`

const QSelectProfileByID = `--sql 7b44d0c2-1e6f-47a9-b3d8-92c5e1f06a37
select id, email, locale, tier, subscription_status,
       quick_used, premium_used, monthly_used, monthly_reset_at,
       credit_balance, coalesce(payment_customer_id, ''), created_at, updated_at
from profiles
where id = $1::uuid;
`

const QUpdateProfileUsage = `--sql c8e52f71-3a9b-4d06-8e14-5b7d90a2c6f8
update profiles
set quick_used = $2::int,
    premium_used = $3::int,
    monthly_used = $4::int,
    monthly_reset_at = $5::timestamptz,
    credit_balance = $6::int,
    updated_at = now()
where id = $1::uuid;
`

const QSetProfilePlan = `--sql 2d90b6e4-5c18-4f73-a2e9-d41f8c03b7a5
update profiles
set tier = $2::text,
    subscription_status = $3::text,
    credit_balance = $4::int,
    updated_at = now()
where id = $1::uuid;
`
